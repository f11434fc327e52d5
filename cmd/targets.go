package cmd

import (
	"github.com/spf13/pflag"

	"firestige.xyz/uoaprobe/internal/scenario"
	"firestige.xyz/uoaprobe/internal/transport"
)

// targetFlags maps endpoint flag names to their config keys.
var targetFlags = map[string]string{
	"serv-ipv4":     "targets.serv_ipv4",
	"serv-ipv6":     "targets.serv_ipv6",
	"lb-ipv4":       "targets.lb_ipv4",
	"lb-ipv6":       "targets.lb_ipv6",
	"self-ipv4":     "targets.self_ipv4",
	"self-ipv6":     "targets.self_ipv6",
	"nat46-lb-ipv4": "targets.nat46_lb_ipv4",
	"nat64-lb-ipv6": "targets.nat64_lb_ipv6",
	"filter":        "probe.filter",
}

func addTargetFlags(fs *pflag.FlagSet) {
	fs.String("serv-ipv4", "", "IPv4 echo server address ip:port (mocked UOA tests)")
	fs.String("serv-ipv6", "", "IPv6 echo server address [ip]:port (mocked UOA tests)")
	fs.String("lb-ipv4", "", "IPv4 load balancer address ip:port")
	fs.String("lb-ipv6", "", "IPv6 load balancer address [ip]:port")
	fs.String("self-ipv4", "", "this host's IPv4 address as the load balancer sees it")
	fs.String("self-ipv6", "", "this host's IPv6 address as the load balancer sees it")
	fs.String("nat46-lb-ipv4", "", "NAT46 load balancer IPv4 address ip:port")
	fs.String("nat64-lb-ipv6", "", "NAT64 load balancer IPv6 address [ip]:port")
	fs.StringP("filter", "k", "", "only scenarios matching this substring or glob pattern")
}

// probeFlags maps run tuning flag names to their config keys.
var probeFlags = map[string]string{
	"timeout":        "probe.timeout",
	"settle":         "probe.settle",
	"priming-rounds": "probe.priming_rounds",
	"parallel":       "probe.parallel",
	"extra-packets":  "probe.extra_packets",
	"report":         "probe.report",
	"capture-type":   "capture.type",
	"interface":      "capture.interface",
}

func addProbeFlags(fs *pflag.FlagSet) {
	fs.Duration("timeout", transport.DefaultTimeout, "how long to wait for each reply")
	fs.Duration("settle", transport.DefaultSettle, "delay between opening a capture and sending")
	fs.Int("priming-rounds", scenario.DefaultPrimingRounds, "address-bearing packets sent before the final one in primed scenarios")
	fs.Int("parallel", 1, "scenarios run concurrently")
	fs.String("extra-packets", string(transport.ExtraFail), "what to do with extra captured replies: fail or first")
	fs.String("report", "", "write a run report to this .yaml/.yml/.json file")
	fs.String("capture-type", "afpacket", "capture backend: afpacket or pcap")
	fs.StringP("interface", "i", "", "capture interface (empty = all)")
}

func merge(maps ...map[string]string) map[string]string {
	out := make(map[string]string)
	for _, m := range maps {
		for k, v := range m {
			out[k] = v
		}
	}
	return out
}
