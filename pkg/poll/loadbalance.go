package poll

import (
	"context"
	"fmt"
	"strings"
)

// LoadBalance is the parsed output of "ubnt-hal wlbGetStatus".
type LoadBalance struct {
	Groups []*Group `json:"groups"`
}

// Group is one WAN load-balance group.
type Group struct {
	Name           string       `json:"name"`
	BalanceLocal   string       `json:"balance_local,omitempty"`
	LockLocalDNS   string       `json:"lock_local_dns,omitempty"`
	ConntrackFlush string       `json:"conntrack_flush,omitempty"`
	StickyBits     string       `json:"sticky_bits,omitempty"`
	Interfaces     []*Interface `json:"interfaces"`
}

// Interface is the status of one member interface of a group.
type Interface struct {
	Name       string `json:"name"`
	Reachable  string `json:"reachable,omitempty"`
	Status     string `json:"status,omitempty"`
	Gateway    string `json:"gateway,omitempty"`
	RouteTable string `json:"route_table,omitempty"`
	Weight     string `json:"weight,omitempty"`
	FOPriority string `json:"fo_priority,omitempty"`
	Flows      *Flows `json:"flows,omitempty"`
}

// Flows holds the per-interface flow counters.
type Flows struct {
	WANOut    string `json:"wan_out,omitempty"`
	WANIn     string `json:"wan_in,omitempty"`
	LocalICMP string `json:"local_icmp,omitempty"`
	LocalDNS  string `json:"local_dns,omitempty"`
	LocalData string `json:"local_data,omitempty"`
}

// ShowLoadBalanceStatus runs wlbGetStatus on the router and parses it.
func ShowLoadBalanceStatus(ctx context.Context, r Runner) (*LoadBalance, error) {
	out, err := r.Run(ctx, "/usr/sbin/ubnt-hal", "wlbGetStatus")
	if err != nil {
		return nil, fmt.Errorf("show load-balance status: %w", err)
	}
	return ParseLoadBalance(string(out)), nil
}

// ParseLoadBalance parses wlbGetStatus output:
//
//	Group wlb
//	    Balance Local  : false
//	    ...
//	  interface   : eth0
//	  reachable   : true
//	  status      : active
//	  ...
//	  flows
//	      WAN Out   : 2170
//
// Lines that are not understood are skipped.
func ParseLoadBalance(text string) *LoadBalance {
	lb := &LoadBalance{}
	var (
		group *Group
		iface *Interface
		flows *Flows
	)

	for _, raw := range strings.Split(text, "\n") {
		line := strings.TrimSpace(raw)
		if name, ok := strings.CutPrefix(line, "Group "); ok {
			group = &Group{Name: strings.TrimSpace(name)}
			lb.Groups = append(lb.Groups, group)
			iface, flows = nil, nil
			continue
		}
		if group == nil {
			continue
		}
		if line == "flows" {
			if iface != nil {
				flows = &Flows{}
				iface.Flows = flows
			}
			continue
		}

		key, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		key, value = strings.TrimSpace(key), strings.TrimSpace(value)

		switch key {
		case "Balance Local":
			group.BalanceLocal = value
		case "Lock Local DNS":
			group.LockLocalDNS = value
		case "Conntrack Flush":
			group.ConntrackFlush = value
		case "Sticky Bits":
			group.StickyBits = value
		case "interface":
			iface = &Interface{Name: value}
			group.Interfaces = append(group.Interfaces, iface)
			flows = nil
		}
		if iface != nil {
			switch key {
			case "reachable":
				iface.Reachable = value
			case "status":
				iface.Status = value
			case "gateway":
				iface.Gateway = value
			case "route table":
				iface.RouteTable = value
			case "weight":
				iface.Weight = value
			case "fo_priority":
				iface.FOPriority = value
			}
		}
		if flows != nil {
			switch key {
			case "WAN Out":
				flows.WANOut = value
			case "WAN In":
				flows.WANIn = value
			case "Local ICMP":
				flows.LocalICMP = value
			case "Local DNS":
				flows.LocalDNS = value
			case "Local Data":
				flows.LocalData = value
			}
		}
	}
	return lb
}

func (lb *LoadBalance) String() string {
	var b strings.Builder
	for i, g := range lb.Groups {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(g.String())
	}
	return b.String()
}

func (g *Group) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Group %s\n", g.Name)
	fmt.Fprintf(&b, "    Balance Local  : %s\n", g.BalanceLocal)
	fmt.Fprintf(&b, "    Lock Local DNS : %s\n", g.LockLocalDNS)
	fmt.Fprintf(&b, "    Conntrack Flush: %s\n", g.ConntrackFlush)
	fmt.Fprintf(&b, "    Sticky Bits    : %s\n", g.StickyBits)
	for _, i := range g.Interfaces {
		b.WriteByte('\n')
		b.WriteString(i.String())
	}
	return b.String()
}

func (i *Interface) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "  interface   : %s\n", i.Name)
	fmt.Fprintf(&b, "  reachable   : %s\n", i.Reachable)
	fmt.Fprintf(&b, "  status      : %s\n", i.Status)
	fmt.Fprintf(&b, "  gateway     : %s\n", i.Gateway)
	fmt.Fprintf(&b, "  route table : %s\n", i.RouteTable)
	fmt.Fprintf(&b, "  weight      : %s\n", i.Weight)
	fmt.Fprintf(&b, "  fo_priority : %s\n", i.FOPriority)
	if f := i.Flows; f != nil {
		b.WriteString("  flows\n")
		fmt.Fprintf(&b, "      WAN Out   : %s\n", f.WANOut)
		fmt.Fprintf(&b, "      WAN In    : %s\n", f.WANIn)
		fmt.Fprintf(&b, "      Local ICMP: %s\n", f.LocalICMP)
		fmt.Fprintf(&b, "      Local DNS : %s\n", f.LocalDNS)
		fmt.Fprintf(&b, "      Local Data: %s\n", f.LocalData)
	}
	return b.String()
}

// StatusChange is an interface whose status differs between two polls.
type StatusChange struct {
	Group     string
	Interface string
	From      string // "" if the interface was not present before
	To        string // "" if the interface disappeared
}

// StatusChanges lists the interfaces whose status differs between prev
// and lb, ordered as in lb then prev. A nil prev yields no changes.
func (lb *LoadBalance) StatusChanges(prev *LoadBalance) []StatusChange {
	if prev == nil {
		return nil
	}
	type key struct{ group, iface string }
	before := make(map[key]string)
	var order []key
	for _, g := range prev.Groups {
		for _, i := range g.Interfaces {
			k := key{g.Name, i.Name}
			before[k] = i.Status
			order = append(order, k)
		}
	}

	var changes []StatusChange
	seen := make(map[key]bool)
	for _, g := range lb.Groups {
		for _, i := range g.Interfaces {
			k := key{g.Name, i.Name}
			seen[k] = true
			old, ok := before[k]
			if ok && old == i.Status {
				continue
			}
			changes = append(changes, StatusChange{Group: g.Name, Interface: i.Name, From: old, To: i.Status})
		}
	}
	for _, k := range order {
		if !seen[k] {
			changes = append(changes, StatusChange{Group: k.group, Interface: k.iface, From: before[k]})
		}
	}
	return changes
}

// Known values of the reachable and status fields.
var (
	ReachableStates = []string{"true", "false"}
	StatusStates    = []string{"active", "inactive", "failover"}
)

// KnownState reports whether value is one of states.
func KnownState(states []string, value string) bool {
	for _, s := range states {
		if s == value {
			return true
		}
	}
	return false
}

// UnknownState is a reachable or status field with an unrecognised value.
type UnknownState struct {
	Group     string
	Interface string
	Field     string
	Value     string
}

// UnknownStates lists the reachable and status fields whose values are not
// among ReachableStates and StatusStates.
func (lb *LoadBalance) UnknownStates() []UnknownState {
	var out []UnknownState
	for _, g := range lb.Groups {
		for _, i := range g.Interfaces {
			if !KnownState(ReachableStates, i.Reachable) {
				out = append(out, UnknownState{g.Name, i.Name, "reachable", i.Reachable})
			}
			if !KnownState(StatusStates, i.Status) {
				out = append(out, UnknownState{g.Name, i.Name, "status", i.Status})
			}
		}
	}
	return out
}
