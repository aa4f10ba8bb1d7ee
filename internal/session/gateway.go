package session

import (
	"fmt"
	"log"
)

// SendChat forwards message verbatim to the live connection. It fails with
// ErrNotConnected unless the session is Online, and wraps adapter failures in
// ErrSendFailed. A failed send never changes the session status.
func (m *Manager) SendChat(message string) error {
	var err error
	if derr := m.do(func() { err = m.sendChat(message) }); derr != nil {
		return ErrNotConnected
	}
	return err
}

func (m *Manager) sendChat(message string) error {
	if m.Status() != Online || m.conn == nil || m.conn.conn == nil {
		return ErrNotConnected
	}
	if err := m.conn.conn.Chat(message); err != nil {
		log.Printf("session: failed to send chat message: %v", err)
		return fmt.Errorf("%w: %v", ErrSendFailed, err)
	}
	m.emit(Event{Type: EventChat, Message: message})
	return nil
}
