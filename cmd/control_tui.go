// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/Thermoquad/lumidox/pkg/device"
	"github.com/Thermoquad/lumidox/pkg/lumidox"
	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

//////////////////////////////////////////////////////////////
// Constants
//////////////////////////////////////////////////////////////

// Focus states
const (
	focusStageList = iota
	focusCurrentInput
	focusButtons
)

// Buttons, in display order
const (
	buttonArm = iota
	buttonSetArm
	buttonOff
	buttonShutdown
	buttonInitialize
	buttonCount
)

var buttonLabels = [buttonCount]string{"Arm", "Set ARM", "Off", "Shutdown", "Initialize"}

//////////////////////////////////////////////////////////////
// Types
//////////////////////////////////////////////////////////////

// stageItem is one stage in the list
type stageItem struct {
	params device.StageParameters
}

// Implement list.Item interface
func (s stageItem) Title() string { return fmt.Sprintf("Stage %d", s.params.Stage) }
func (s stageItem) Description() string {
	return fmt.Sprintf("%d mA, %.1f %s", s.params.FireCurrentMA, s.params.TotalPower, unitSymbol(s.params.TotalUnits))
}
func (s stageItem) FilterValue() string { return strconv.Itoa(s.params.Stage) }

// unitSymbol returns the leading unit of a device unit label
func unitSymbol(label string) string {
	if f := strings.Fields(label); len(f) > 0 {
		return f[0]
	}
	return label
}

// controlModel is the Bubble Tea model for the control TUI
type controlModel struct {
	session   *controlSession
	connInfo  string
	optimized bool

	// Device
	info    device.Info
	mode    device.Mode
	stages  []device.StageParameters
	loaded  bool
	busy    string
	lastMsg string

	// Monitoring
	stats lumidox.Statistics
	log   eventLog

	// Control
	stageList    list.Model
	currentInput textinput.Model
	focusedField int
	button       int

	// UI state
	width          int
	height         int
	quitting       bool
	connectionLost bool
}

//////////////////////////////////////////////////////////////
// Messages
//////////////////////////////////////////////////////////////

type controlTickMsg time.Time

type stagesLoadedMsg struct {
	info   device.Info
	stages []device.StageParameters
	mode   device.Mode
	stats  lumidox.Statistics
	err    error
}

type opResultMsg struct {
	name    string
	message string
	err     error
	mode    device.Mode
	stats   lumidox.Statistics
}

type connectionLostMsg struct{}

type reconnectedMsg struct {
	connInfo string
	mode     device.Mode
}

//////////////////////////////////////////////////////////////
// Model Initialization
//////////////////////////////////////////////////////////////

func initialControlModel(session *controlSession, connInfo string, optimized bool) controlModel {
	// Initialize text input for the custom current
	ti := textinput.New()
	ti.Placeholder = "mA"
	ti.CharLimit = 5
	ti.Width = 8

	// Initialize stage list with empty items
	delegate := list.NewDefaultDelegate()
	delegate.ShowDescription = true
	delegate.SetHeight(2)
	stageList := list.New([]list.Item{}, delegate, 30, 12)
	stageList.Title = "Stages"
	stageList.SetShowStatusBar(false)
	stageList.SetShowHelp(false)
	stageList.SetFilteringEnabled(false)

	return controlModel{
		session:      session,
		connInfo:     connInfo,
		optimized:    optimized,
		stageList:    stageList,
		currentInput: ti,
		focusedField: focusStageList,
		width:        80,
		height:       24,
	}
}

//////////////////////////////////////////////////////////////
// Bubble Tea Interface
//////////////////////////////////////////////////////////////

func (m controlModel) Init() tea.Cmd {
	return controlTickCmd()
}

func controlTickCmd() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return controlTickMsg(t)
	})
}

func (m controlModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKeyMsg(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.updateListSize()

	case controlTickMsg:
		m.stats.CalculateRates()
		return m, controlTickCmd()

	case stagesLoadedMsg:
		m.mode = msg.mode
		m.stats = msg.stats
		if msg.err != nil {
			m.log.add(fmt.Sprintf("Failed to read device: %v", msg.err), true)
			return m, nil
		}
		m.info = msg.info
		m.stages = msg.stages
		m.loaded = true
		m.updateStageList()
		m.log.add(fmt.Sprintf("Connected to %s, firmware %s", m.info.Model, m.info.Firmware), false)

	case opResultMsg:
		m.busy = ""
		m.mode = msg.mode
		m.stats = msg.stats
		if msg.err != nil {
			m.log.add(fmt.Sprintf("%s failed: %v", msg.name, msg.err), true)
		} else {
			m.lastMsg = msg.message
			m.log.add(msg.message, false)
		}

	case connectionLostMsg:
		m.connectionLost = true
		m.log.add("Connection lost - reconnecting...", true)

	case reconnectedMsg:
		m.connectionLost = false
		m.connInfo = msg.connInfo
		m.mode = msg.mode
		m.log.add("Reconnected", false)
	}

	return m, nil
}

func (m controlModel) handleKeyMsg(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		if msg.String() == "q" && m.focusedField == focusCurrentInput {
			break
		}
		m.quitting = true
		return m, tea.Quit

	case "tab":
		m.cycleFocus(1)
		return m, nil

	case "shift+tab":
		m.cycleFocus(-1)
		return m, nil

	case "enter":
		m.handleEnter()
		return m, nil

	case "left", "h":
		if m.focusedField == focusButtons {
			m.button = (m.button + buttonCount - 1) % buttonCount
			return m, nil
		}

	case "right", "l":
		if m.focusedField == focusButtons {
			m.button = (m.button + 1) % buttonCount
			return m, nil
		}
	}

	// Pass through to focused component
	var cmd tea.Cmd
	switch m.focusedField {
	case focusStageList:
		m.stageList, cmd = m.stageList.Update(msg)
	case focusCurrentInput:
		m.currentInput, cmd = m.currentInput.Update(msg)
	}
	return m, cmd
}

func (m *controlModel) cycleFocus(delta int) {
	m.focusedField = (m.focusedField + delta + focusButtons + 1) % (focusButtons + 1)
	if m.focusedField == focusCurrentInput {
		m.currentInput.Focus()
	} else {
		m.currentInput.Blur()
	}
}

func (m *controlModel) handleEnter() {
	// Don't allow control commands while connection is lost
	if m.connectionLost {
		m.log.add("Cannot send command: connection lost", true)
		return
	}

	switch m.focusedField {
	case focusStageList:
		if stage := m.selectedStage(); stage > 0 {
			m.submit(fireStageOp(stage))
		}

	case focusCurrentInput:
		if current, ok := m.inputCurrent(); ok {
			m.submit(fireCurrentOp(current))
		}

	case focusButtons:
		switch m.button {
		case buttonArm:
			m.submit(armOp())
		case buttonSetArm:
			if current, ok := m.inputCurrent(); ok {
				m.submit(setArmCurrentOp(current))
			}
		case buttonOff:
			m.submit(offOp())
		case buttonShutdown:
			m.submit(shutdownOp())
		case buttonInitialize:
			m.submit(initializeOp())
		}
	}
}

// submit hands op to the worker unless another operation is running
func (m *controlModel) submit(op controlOp) {
	if m.session == nil || !m.session.submit(op) {
		m.log.add(fmt.Sprintf("Busy, %s ignored", op.name), true)
		return
	}
	m.busy = op.name
}

// inputCurrent parses the current input. Range checks happen in the
// controller against the device maximum.
func (m *controlModel) inputCurrent() (int, bool) {
	s := strings.TrimSpace(m.currentInput.Value())
	if s == "" {
		m.log.add("Enter a current in mA first", true)
		return 0, false
	}
	current, err := strconv.Atoi(s)
	if err != nil {
		m.log.add(fmt.Sprintf("Invalid current: %s", s), true)
		return 0, false
	}
	return current, true
}

func (m controlModel) View() string {
	if m.quitting {
		return "Turning off and shutting down...\n"
	}

	st := newStyles()
	var s strings.Builder

	// Header
	s.WriteString(st.title.Render("LUMIDOX CONTROL"))
	s.WriteString(" ")
	connStatus := m.connInfo
	if m.connectionLost {
		connStatus = st.warning.Render("RECONNECTING...")
	}
	s.WriteString(st.header.Render(fmt.Sprintf("| %s | q=quit Tab=switch Enter=run", connStatus)))
	s.WriteString("\n\n")

	if !m.loaded {
		s.WriteString(st.warning.Render("Reading device..."))
		s.WriteString("\n\n")
		s.WriteString(renderEventLog(st, m.log, 8, m.width))
		return s.String()
	}

	// Layout: left panel (stages) | right panel (control)
	leftWidth := 30
	rightWidth := m.width - leftWidth - 6

	listStyle := st.box.Width(leftWidth)
	if m.focusedField == focusStageList {
		listStyle = st.focusedBox.Width(leftWidth)
	}
	stagePanel := listStyle.Render(m.stageList.View())
	controlPanel := st.box.Width(rightWidth).Render(m.renderControlPanel(st))

	s.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, stagePanel, " ", controlPanel))
	s.WriteString("\n\n")

	// Statistics bar
	s.WriteString(renderStatisticsBar(st, m.stats, m.width))
	s.WriteString("\n\n")

	// Event log
	s.WriteString(renderEventLog(st, m.log, 8, m.width))

	return s.String()
}

//////////////////////////////////////////////////////////////
// View Helpers
//////////////////////////////////////////////////////////////

func (m controlModel) renderControlPanel(st tuiStyles) string {
	var s strings.Builder

	// Device info
	fmt.Fprintf(&s, "%s %s  %s %s\n",
		st.label.Render("Model:"), st.value.Render(m.info.Model),
		st.label.Render("Firmware:"), st.value.Render(m.info.Firmware))
	fmt.Fprintf(&s, "%s %s  %s %s\n",
		st.label.Render("Serial:"), st.value.Render(m.info.Serial),
		st.label.Render("Wavelength:"), st.value.Render(m.info.Wavelength))

	// Mode
	modeStyle := st.value
	switch {
	case m.mode == device.ModeRemote:
		modeStyle = st.err
	case m.mode == device.ModeArmed:
		modeStyle = st.warning
	case !m.mode.Ready():
		modeStyle = st.header
	}
	transitions := "full safety sequence"
	if m.optimized {
		transitions = "optimized"
	}
	fmt.Fprintf(&s, "%s %s  %s %s\n\n",
		st.label.Render("Mode:"), modeStyle.Render(strings.ToUpper(m.mode.String())),
		st.label.Render("Transitions:"), st.header.Render(transitions))

	// Selected stage
	if stage := m.selectedStage(); stage > 0 {
		p := m.stages[stage-1]
		fmt.Fprintf(&s, "%s ARM %d mA, FIRE %d mA, %.1f-%.1f V\n",
			st.label.Render(fmt.Sprintf("Stage %d:", stage)),
			p.ArmCurrentMA, p.FireCurrentMA, p.VoltStart, p.VoltLimit)
		fmt.Fprintf(&s, "%s %.1f %s, %.1f %s\n\n",
			st.label.Render("Output:"), p.TotalPower, p.TotalUnits, p.PerPower, p.PerUnits)
	}

	// Custom current
	s.WriteString(st.label.Render("Current (mA): "))
	if m.focusedField == focusCurrentInput {
		s.WriteString(m.currentInput.View())
	} else {
		val := m.currentInput.Value()
		if val == "" {
			val = m.currentInput.Placeholder
		}
		s.WriteString(fmt.Sprintf("[%s]", val))
	}
	s.WriteString("\n\n")

	// Buttons
	for i, label := range buttonLabels {
		style := st.button
		if m.focusedField == focusButtons && m.button == i {
			style = st.focusedButton
		}
		s.WriteString(style.Render(label))
		s.WriteString(" ")
	}
	s.WriteString("\n\n")

	switch {
	case m.busy != "":
		s.WriteString(st.warning.Render(fmt.Sprintf("Running %s...", m.busy)))
	case m.lastMsg != "":
		s.WriteString(st.header.Render(m.lastMsg))
	}

	return s.String()
}

//////////////////////////////////////////////////////////////
// Helpers
//////////////////////////////////////////////////////////////

// selectedStage returns the highlighted stage number, or 0
func (m controlModel) selectedStage() int {
	if len(m.stages) == 0 {
		return 0
	}
	idx := m.stageList.Index()
	if idx < 0 || idx >= len(m.stages) {
		return 0
	}
	return m.stages[idx].Stage
}

func (m *controlModel) updateStageList() {
	items := make([]list.Item, len(m.stages))
	for i, p := range m.stages {
		items[i] = stageItem{params: p}
	}
	m.stageList.SetItems(items)
}

func (m *controlModel) updateListSize() {
	// Adjust list size based on terminal size
	listHeight := m.height / 2
	if listHeight < 8 {
		listHeight = 8
	}
	m.stageList.SetSize(28, listHeight)
}
