package device

import (
	"context"
	"encoding/xml"
	"fmt"
	"log/slog"
	"strings"

	"github.com/cochaviz/dinghy/arch"
	"github.com/cochaviz/dinghy/internal/command"
	"github.com/cochaviz/dinghy/internal/config"
	"github.com/cochaviz/dinghy/internal/errdefs"
	"github.com/cochaviz/dinghy/internal/logging"
	libvirt "libvirt.org/go/libvirt"
)

// DefaultLibvirtURI is used when the configuration names no connection.
const DefaultLibvirtURI = "qemu:///system"

type domainInfo struct {
	Name      string
	Arch      string
	Addresses []string
	MACs      []string
}

var (
	connectLibvirt = func(uri string) error {
		conn, err := libvirt.NewConnect(uri)
		if err != nil {
			return err
		}
		_, err = conn.Close()
		return err
	}
	listActiveDomains = func(uri string) ([]domainInfo, error) {
		conn, err := libvirt.NewConnect(uri)
		if err != nil {
			return nil, fmt.Errorf("open libvirt connection %s: %w", uri, err)
		}
		defer conn.Close()

		domains, err := conn.ListAllDomains(libvirt.CONNECT_LIST_DOMAINS_ACTIVE)
		if err != nil {
			return nil, fmt.Errorf("list domains: %w", err)
		}
		out := make([]domainInfo, 0, len(domains))
		for i := range domains {
			info, err := describeDomain(&domains[i])
			domains[i].Free()
			if err != nil {
				return nil, err
			}
			out = append(out, info)
		}
		return out, nil
	}
)

func describeDomain(dom *libvirt.Domain) (domainInfo, error) {
	xmlDesc, err := dom.GetXMLDesc(0)
	if err != nil {
		return domainInfo{}, fmt.Errorf("describe domain: %w", err)
	}
	info, err := parseDomainXML(xmlDesc)
	if err != nil {
		return domainInfo{}, err
	}

	ifaces, err := dom.ListAllInterfaceAddresses(libvirt.DOMAIN_INTERFACE_ADDRESSES_SRC_LEASE)
	if err != nil {
		// guests without a libvirt-managed network have no leases
		return info, nil
	}
	for _, iface := range ifaces {
		for _, addr := range iface.Addrs {
			if addr.Type == libvirt.IP_ADDR_TYPE_IPV4 {
				info.Addresses = append(info.Addresses, addr.Addr)
			}
		}
	}
	return info, nil
}

type domainXML struct {
	Name string `xml:"name"`
	OS   struct {
		Type struct {
			Arch string `xml:"arch,attr"`
		} `xml:"type"`
	} `xml:"os"`
	Interfaces []struct {
		MAC struct {
			Address string `xml:"address,attr"`
		} `xml:"mac"`
	} `xml:"devices>interface"`
}

func parseDomainXML(data string) (domainInfo, error) {
	var doc domainXML
	if err := xml.Unmarshal([]byte(data), &doc); err != nil {
		return domainInfo{}, fmt.Errorf("parse domain xml: %w", err)
	}
	info := domainInfo{Name: strings.TrimSpace(doc.Name), Arch: strings.TrimSpace(doc.OS.Type.Arch)}
	for _, iface := range doc.Interfaces {
		if mac := strings.ToLower(strings.TrimSpace(iface.MAC.Address)); mac != "" {
			info.MACs = append(info.MACs, mac)
		}
	}
	return info, nil
}

// LibvirtManager exposes running virtual machines as SSH devices. A guest's
// triple follows from its architecture; its platform from the configured
// architecture map.
type LibvirtManager struct {
	Config *config.LibvirtConfiguration
	Runner command.Runner
	Logger *slog.Logger
}

var _ Manager = (*LibvirtManager)(nil)

func (m *LibvirtManager) logger() *slog.Logger {
	return logging.Ensure(m.Logger).With("manager", "libvirt")
}

func (m *LibvirtManager) Name() string { return "libvirt" }

func (m *LibvirtManager) uri() string {
	if m.Config != nil && strings.TrimSpace(m.Config.URI) != "" {
		return strings.TrimSpace(m.Config.URI)
	}
	return DefaultLibvirtURI
}

func (m *LibvirtManager) Probe(context.Context) error {
	if m.Config == nil {
		return fmt.Errorf("libvirt not configured: %w", errdefs.ErrProbeUnavailable)
	}
	if err := connectLibvirt(m.uri()); err != nil {
		return fmt.Errorf("connect %s: %v: %w", m.uri(), err, errdefs.ErrProbeUnavailable)
	}
	return nil
}

func (m *LibvirtManager) Devices(context.Context) ([]Device, error) {
	if m.Config == nil {
		return nil, nil
	}
	domains, err := listActiveDomains(m.uri())
	if err != nil {
		return nil, err
	}

	logger := m.logger()
	var neighbours map[string]string
	var devices []Device
	for _, dom := range domains {
		address := ""
		if len(dom.Addresses) > 0 {
			address = dom.Addresses[0]
		} else {
			if neighbours == nil {
				if neighbours, err = neighbourTable(); err != nil {
					logger.Warn("read neighbour table", "error", err)
					neighbours = map[string]string{}
				}
			}
			for _, mac := range dom.MACs {
				if ip, ok := neighbours[mac]; ok {
					address = ip
					break
				}
			}
		}
		if address == "" {
			logger.Warn("skipping domain without address", "domain", dom.Name)
			continue
		}
		devices = append(devices, NewSSHDevice("libvirt:"+dom.Name, m.deviceConfiguration(dom, address), m.Runner, m.Logger))
	}
	return devices, nil
}

func (m *LibvirtManager) deviceConfiguration(dom domainInfo, address string) config.SSHDeviceConfiguration {
	conf := config.SSHDeviceConfiguration{
		Hostname: address,
		Username: m.Config.Username,
		Path:     m.Config.Path,
	}
	a := arch.Normalize(dom.Arch)
	if triple := a.LinuxTriple(); triple != "" {
		conf.Triples = []string{triple.String()}
	}
	if p, ok := m.Config.Platforms[dom.Arch]; ok {
		conf.Platform = p
	} else if p, ok := m.Config.Platforms[a.String()]; ok {
		conf.Platform = p
	}
	return conf
}
