package bugst

import (
	"sort"
	"strings"

	"go.bug.st/serial/enumerator"
)

// PortDetails describes one serial port found by the OS enumerator.
type PortDetails struct {
	Name         string
	IsUSB        bool
	VID          string
	PID          string
	SerialNumber string
	Product      string
}

// allow tests to override enumeration
var detailedPorts = enumerator.GetDetailedPortsList

// Ports lists the serial ports the OS reports, sorted by name.
func Ports() ([]PortDetails, error) {
	list, err := detailedPorts()
	if err != nil {
		return nil, err
	}
	ports := make([]PortDetails, 0, len(list))
	for _, p := range list {
		ports = append(ports, PortDetails{
			Name:         p.Name,
			IsUSB:        p.IsUSB,
			VID:          p.VID,
			PID:          p.PID,
			SerialNumber: p.SerialNumber,
			Product:      p.Product,
		})
	}
	sort.Slice(ports, func(i, j int) bool { return ports[i].Name < ports[j].Name })
	return ports, nil
}

// FindUSB returns the ports whose USB vendor and product ids match,
// ignoring case.
func FindUSB(vid, pid string) ([]PortDetails, error) {
	all, err := Ports()
	if err != nil {
		return nil, err
	}
	var out []PortDetails
	for _, p := range all {
		if p.IsUSB && strings.EqualFold(p.VID, vid) && strings.EqualFold(p.PID, pid) {
			out = append(out, p)
		}
	}
	return out, nil
}
