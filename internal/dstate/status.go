package dstate

import (
	"slices"
	"strings"
)

// Conventional aggregate variables built by the status helpers.
const (
	VarStatus = "ups.status"
	VarAlarm  = "ups.alarm"
)

// StatusInit starts a new ups.status value.
func (s *Server) StatusInit() {
	s.status = s.status[:0]
}

// StatusSet adds a status token such as "OL" or "LB". Repeated tokens are
// ignored.
func (s *Server) StatusSet(token string) {
	if slices.ContainsFunc(s.status, func(t string) bool { return strings.EqualFold(t, token) }) {
		return
	}
	s.status = append(s.status, token)
}

// StatusCommit publishes the accumulated tokens as ups.status, prefixed
// with ALARM while an alarm is active.
func (s *Server) StatusCommit() {
	value := strings.Join(s.status, " ")
	if s.alarmActive {
		value = strings.TrimSpace("ALARM " + value)
	}
	s.SetInfo(VarStatus, value)
}

// AlarmInit starts a new ups.alarm value.
func (s *Server) AlarmInit() {
	s.alarm = s.alarm[:0]
}

// AlarmSet adds an alarm message.
func (s *Server) AlarmSet(text string) {
	s.alarm = append(s.alarm, text)
}

// AlarmCommit publishes the accumulated alarms as ups.alarm, or removes
// ups.alarm when there are none. Call before StatusCommit so the ALARM
// status prefix reflects the new state.
func (s *Server) AlarmCommit() {
	if len(s.alarm) == 0 {
		s.alarmActive = false
		s.DelInfo(VarAlarm)
		return
	}
	s.alarmActive = true
	s.SetInfo(VarAlarm, strings.Join(s.alarm, " "))
}
