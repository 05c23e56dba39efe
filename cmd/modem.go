/*
Copyright © 2025 Mathias Djärv <mathias.djarv@allbinary.se>
*/
package cmd

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/allbin/go-cellport"
	"go.uber.org/atomic"
)

// modemTick is how often the simulated modem looks at its lines.
const modemTick = 10 * time.Millisecond

// simModem plays the modem on the far end of a SimLine: it answers AT
// commands and can stream unsolicited data at a fixed rate.
type simModem struct {
	line *cellport.SimLine

	obeyRTS atomic.Bool
	sent    atomic.Int64 // bytes handed to the line
	held    atomic.Int64 // ticks spent waiting for RTS

	stop chan struct{}
	once sync.Once
	wg   sync.WaitGroup
}

func newSimModem(line *cellport.SimLine) *simModem {
	m := &simModem{line: line, stop: make(chan struct{})}
	m.obeyRTS.Store(true)
	m.wg.Add(1)
	go m.answer()
	return m
}

// answer replies to every CR-terminated command the host transmits.
func (m *simModem) answer() {
	defer m.wg.Done()

	ticker := time.NewTicker(modemTick)
	defer ticker.Stop()
	consumed := 0
	for {
		select {
		case <-m.stop:
			return
		case <-ticker.C:
		}
		tx := m.line.Transmitted()
		for {
			i := bytes.IndexByte(tx[consumed:], '\r')
			if i < 0 {
				break
			}
			command := strings.TrimSpace(string(tx[consumed : consumed+i]))
			consumed += i + 1
			if reply := modemReply(command); reply != nil {
				if err := m.send(reply); err != nil {
					return
				}
			}
		}
	}
}

// modemReply returns what an EG25-class module answers to command, or nil
// for input that is not an AT command.
func modemReply(command string) []byte {
	upper := strings.ToUpper(command)
	if !strings.HasPrefix(upper, "AT") {
		return nil
	}
	var info string
	switch upper {
	case "AT", "ATE0", "ATE1", "AT&F", "AT+CMEE=2":
	case "ATI":
		info = "Quectel\r\nEG25\r\nRevision: EG25GGBR07A08M2G"
	case "AT+CGMI":
		info = "Quectel"
	case "AT+CGMM":
		info = "EG25"
	case "AT+CSQ":
		info = "+CSQ: 23,99"
	case "AT+CPIN?":
		info = "+CPIN: READY"
	case "AT+CREG?":
		info = "+CREG: 0,1"
	case "AT+COPS?":
		info = `+COPS: 0,0,"Telia",7`
	default:
		return []byte("\r\nERROR\r\n")
	}
	if info == "" {
		return []byte("\r\nOK\r\n")
	}
	return []byte("\r\n" + info + "\r\n\r\nOK\r\n")
}

// Stream pushes URC-framed payload at rate bytes per second until ctx is
// done. While obeying RTS it holds off whenever the host de-asserts it.
func (m *simModem) Stream(ctx context.Context, rate int) error {
	if rate <= 0 {
		return fmt.Errorf("stream rate %d: %w", rate, cellport.ErrInvalidParameter)
	}
	perTick := rate * int(modemTick) / int(time.Second)
	if perTick < 1 {
		perTick = 1
	}

	ticker := time.NewTicker(modemTick)
	defer ticker.Stop()
	var seq int
	var pending []byte
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-m.stop:
			return nil
		case <-ticker.C:
		}
		if m.obeyRTS.Load() && !m.line.RTS() {
			m.held.Inc()
			continue
		}
		for len(pending) < perTick {
			pending = append(pending, urc(seq)...)
			seq++
		}
		if err := m.send(pending[:perTick]); err != nil {
			return err
		}
		pending = pending[perTick:]
	}
}

// Burst sends n bytes at once regardless of RTS, as a modem with a deep
// transmit FIFO does after RTS drops.
func (m *simModem) Burst(n int) error {
	var b []byte
	for seq := 0; len(b) < n; seq++ {
		b = append(b, urc(seq)...)
	}
	return m.send(b[:n])
}

// SetCTS drives the modem's CTS output.
func (m *simModem) SetCTS(asserted bool) {
	m.line.SetCTS(asserted)
}

func (m *simModem) CTS() bool {
	cts, _ := m.line.CTS()
	return cts
}

func (m *simModem) send(p []byte) error {
	if err := m.line.Inject(p); err != nil {
		return err
	}
	m.sent.Add(int64(len(p)))
	return nil
}

func (m *simModem) Stop() {
	m.once.Do(func() { close(m.stop) })
	m.wg.Wait()
}

func urc(seq int) []byte {
	return []byte(fmt.Sprintf("+QIURC: \"recv\",0,%d\r\n", seq))
}
