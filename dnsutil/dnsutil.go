// Package dnsutil resolves the reverse-DNS (PTR) name of a connecting peer,
// used to enrich Session.Trace with a client hostname hint.
package dnsutil

import (
	"fmt"
	"net"
	"strings"

	"github.com/miekg/dns"

	"github.com/corvidmail/smtpd/utils"
)

// ReverseDNSLookup performs a reverse DNS lookup for the given network
// address, returning the first PTR record found.
func ReverseDNSLookup(addr net.Addr) (string, error) {
	if addr == nil {
		return "", fmt.Errorf("address is nil")
	}

	ip, err := utils.GetIPFromAddr(addr)
	if err != nil {
		return "", err
	}

	arpa, err := dns.ReverseAddr(ip.String())
	if err != nil {
		return "", fmt.Errorf("failed to build reverse address: %w", err)
	}

	msg := new(dns.Msg)
	msg.SetQuestion(arpa, dns.TypePTR)
	msg.RecursionDesired = true

	config, err := dns.ClientConfigFromFile("/etc/resolv.conf")
	if err != nil {
		return "", fmt.Errorf("failed to read DNS config: %w", err)
	}

	client := new(dns.Client)
	var lastErr error

	for _, server := range config.Servers {
		r, _, err := client.Exchange(msg, net.JoinHostPort(server, config.Port))
		if err != nil {
			lastErr = err
			continue
		}
		if r.Rcode != dns.RcodeSuccess {
			lastErr = fmt.Errorf("DNS query failed with rcode: %s", dns.RcodeToString[r.Rcode])
			continue
		}
		for _, ans := range r.Answer {
			if ptr, ok := ans.(*dns.PTR); ok {
				return strings.TrimSuffix(ptr.Ptr, "."), nil
			}
		}
	}

	if lastErr != nil {
		return "", fmt.Errorf("reverse DNS lookup failed: %w", lastErr)
	}
	return "", fmt.Errorf("no PTR records found for %s", ip.String())
}
