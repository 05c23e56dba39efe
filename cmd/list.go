/*
Copyright © 2025 Mathias Djärv <mathias.djarv@allbinary.se>
*/
package cmd

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/allbin/go-cellport/driver/bugst"
	"github.com/allbin/go-cellport/driver/tty"
	"github.com/allbin/go-cellport/internal/tui/styles"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"
)

// listCmd represents the list command
var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List serial ports a modem can be attached to",
	Long: `List the serial devices a cellular modem can sit behind:
- USB serial interfaces (ttyUSB*), as exposed by Quectel, Sierra and Telit modules
- USB CDC/ACM devices (ttyACM*)
- Board UARTs (ttyS*, ttyAMA*, ttymxc* and other platform-specific devices)

Virtual terminals and pseudo-terminals are excluded. With --usb vid:pid the
OS enumerator is queried instead, which also works for the bugst driver.

Examples:
  cellport list --table
  cellport list --filter usb
  cellport list --usb 2c7c:0125`,
	RunE: func(cmd *cobra.Command, args []string) error {
		filterType, _ := cmd.Flags().GetString("filter")
		tableFormat, _ := cmd.Flags().GetBool("table")
		usbID, _ := cmd.Flags().GetString("usb")

		if usbID != "" {
			return listUSB(usbID)
		}

		ports, err := tty.ListPorts()
		if err != nil {
			return fmt.Errorf("listing ports: %w", err)
		}

		filtered, err := filterPorts(ports, filterType)
		if err != nil {
			return err
		}
		if len(filtered) == 0 {
			if filterType != "" {
				fmt.Printf("No serial ports found matching filter: %s\n", filterType)
			} else {
				fmt.Println("No serial ports found")
			}
			return nil
		}

		if tableFormat {
			renderTable(filtered)
		} else {
			renderSimple(filtered)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(listCmd)

	listCmd.Flags().StringP("filter", "f", "", "Filter by port type: usb, standard, arm, all")
	listCmd.Flags().BoolP("table", "t", false, "Display output in a styled table format")
	listCmd.Flags().String("usb", "", "List USB ports matching vid:pid from the OS enumerator")
}

// portKinds classifies tty names, most specific prefix first.
var portKinds = []struct {
	prefix string
	kind   string
	class  string // filter class
}{
	{"ttyusb", "USB Serial", "usb"},
	{"ttyacm", "USB CDC/ACM", "usb"},
	{"ttyama", "ARM Serial", "arm"},
	{"ttymxc", "i.MX Serial", "arm"},
	{"ttysac", "Samsung Serial", "arm"},
	{"ttyths", "Tegra Serial", "arm"},
	{"ttyo", "OMAP Serial", "arm"},
	{"ttys", "Standard Serial", "standard"},
}

func classify(name string) (kind, class string) {
	name = strings.ToLower(filepath.Base(name))
	for _, k := range portKinds {
		if strings.HasPrefix(name, k.prefix) {
			return k.kind, k.class
		}
	}
	return "Serial Port", ""
}

// filterPorts keeps the ports of one filter class: usb, standard or arm.
func filterPorts(ports []string, filterType string) ([]string, error) {
	filterType = strings.ToLower(filterType)
	switch filterType {
	case "", "all":
		return ports, nil
	case "usb", "standard", "arm":
	default:
		return nil, fmt.Errorf("unknown filter: %s (valid: usb, standard, arm, all)", filterType)
	}

	var filtered []string
	for _, port := range ports {
		if _, class := classify(port); class == filterType {
			filtered = append(filtered, port)
		}
	}
	return filtered, nil
}

// renderTable renders the port list in a styled static table format
func renderTable(ports []string) {
	fmt.Printf("Found %d serial port(s):\n\n", len(ports))

	rows := make([][]string, 0, len(ports))
	for _, port := range ports {
		info, err := tty.GetPortInfo(port)
		if err != nil {
			rows = append(rows, []string{port, "Unknown", fmt.Sprintf("Error: %v", err), ""})
			continue
		}
		usb := ""
		if info.VendorID != "" {
			usb = info.VendorID + ":" + info.ProductID
			if info.InterfaceNumber != "" {
				usb += " if" + info.InterfaceNumber
			}
		}
		rows = append(rows, []string{info.Name, getPortType(info.Name), info.Description, usb})
	}
	fmt.Println(portTable([]string{"Port", "Type", "Description", "USB"}, rows))
}

func portTable(headers []string, rows [][]string) string {
	return table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(lipgloss.Color("240"))).
		Headers(headers...).
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return styles.LabelStyle.Bold(true).Padding(0, 1)
			}
			return lipgloss.NewStyle().Padding(0, 1)
		}).
		String()
}

// renderSimple renders the port list in simple text format
func renderSimple(ports []string) {
	for _, port := range ports {
		fmt.Println(port)
	}
}

func listUSB(id string) error {
	vid, pid, ok := strings.Cut(id, ":")
	if !ok || vid == "" || pid == "" {
		return fmt.Errorf("invalid usb id %q (want vid:pid)", id)
	}
	ports, err := bugst.FindUSB(vid, pid)
	if err != nil {
		return fmt.Errorf("enumerating ports: %w", err)
	}
	if len(ports) == 0 {
		fmt.Printf("No USB ports found for %s\n", id)
		return nil
	}
	rows := make([][]string, 0, len(ports))
	for _, p := range ports {
		rows = append(rows, []string{p.Name, p.VID + ":" + p.PID, p.SerialNumber, p.Product})
	}
	fmt.Println(portTable([]string{"Port", "USB", "Serial", "Product"}, rows))
	return nil
}

// getPortType returns a more specific type classification for the port
func getPortType(name string) string {
	kind, _ := classify(name)
	return kind
}
