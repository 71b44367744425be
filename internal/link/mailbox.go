package link

// Mailbox hands commands from producer goroutines (UDP receiver, web
// handlers) to the control loop. It holds at most one command: a newer
// command replaces one the loop has not yet picked up, since only the current
// target matters.
type Mailbox struct {
	ch chan Command
}

func NewMailbox() *Mailbox {
	return &Mailbox{ch: make(chan Command, 1)}
}

// Post stores c, replacing any pending command. It never blocks.
func (m *Mailbox) Post(c Command) {
	for {
		select {
		case m.ch <- c:
			return
		default:
		}
		select {
		case <-m.ch:
		default:
		}
	}
}

// Poll returns the pending command, if any, without blocking.
func (m *Mailbox) Poll() (Command, bool) {
	select {
	case c := <-m.ch:
		return c, true
	default:
		return Command{}, false
	}
}
