package enrich

import (
	"net"
	"os"
	"strings"
)

// SimCard describes one configured SIM slot.
type SimCard struct {
	Slot     int // 1-based
	Name     string
	Operator string
	Country  string
}

// SimInfo builds the sim_info section. It returns nil when nothing is known.
func SimInfo(state string, cards []SimCard) map[string]any {
	out := make(map[string]any)
	putString(out, "sim_state", state)

	if len(cards) > 0 {
		putString(out, "sim_operator", cards[0].Operator)
		putString(out, "sim_country", strings.ToUpper(cards[0].Country))

		slots := make([]map[string]any, 0, len(cards))
		for _, c := range cards {
			slot := map[string]any{"slot_index": c.Slot - 1}
			putString(slot, "display_name", c.Name)
			putString(slot, "carrier_name", c.Operator)
			putString(slot, "country_iso", strings.ToLower(c.Country))
			slots = append(slots, slot)
		}
		out["sim_slots"] = slots
		out["sim_count"] = len(cards)
	}

	if len(out) == 0 {
		return nil
	}
	return out
}

// Address is one non-loopback interface address.
type Address struct {
	Address   string
	Interface string
	IPv4      bool
	Private   bool
}

// NetworkInfo builds the network_info section from interface addresses.
// The primary IP is the first private IPv4 address, else the first IPv4,
// else the first address.
func NetworkInfo(hostname string, addrs []Address) map[string]any {
	out := make(map[string]any)
	putString(out, "hostname", hostname)
	out["is_connected"] = len(addrs) > 0

	all := make([]map[string]any, 0, len(addrs))
	for _, a := range addrs {
		all = append(all, map[string]any{
			"address":       a.Address,
			"interface":     a.Interface,
			"is_ipv4":       a.IPv4,
			"is_site_local": a.Private,
		})
	}
	ips := map[string]any{"all_addresses": all}
	if primary := primaryIP(addrs); primary != "" {
		ips["primary_ip"] = primary
	}
	out["ip_addresses"] = ips
	return out
}

func primaryIP(addrs []Address) string {
	for _, a := range addrs {
		if a.IPv4 && a.Private {
			return a.Address
		}
	}
	for _, a := range addrs {
		if a.IPv4 {
			return a.Address
		}
	}
	if len(addrs) > 0 {
		return addrs[0].Address
	}
	return ""
}

// HostNetworkInfo reports the network_info section of the running host.
func HostNetworkInfo() map[string]any {
	host, _ := os.Hostname()
	return NetworkInfo(host, hostAddresses())
}

func hostAddresses() []Address {
	ifaces, err := net.Interfaces()
	if err != nil {
		return nil
	}
	var out []Address
	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
			continue
		}
		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}
		for _, addr := range addrs {
			ipnet, ok := addr.(*net.IPNet)
			if !ok || ipnet.IP.IsLoopback() {
				continue
			}
			out = append(out, Address{
				Address:   ipnet.IP.String(),
				Interface: iface.Name,
				IPv4:      ipnet.IP.To4() != nil,
				Private:   ipnet.IP.IsPrivate(),
			})
		}
	}
	return out
}
