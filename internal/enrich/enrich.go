// Package enrich supplies optional device context for enhanced payloads.
package enrich

import (
	"context"
	"os"
	"runtime"
)

// Info is the full set of facts a Provider can report.
type Info struct {
	DeviceModel        string         `json:"device_model,omitempty"`
	DeviceManufacturer string         `json:"device_manufacturer,omitempty"`
	DeviceBrand        string         `json:"device_brand,omitempty"`
	DeviceProduct      string         `json:"device_product,omitempty"`
	OSVersion          string         `json:"os_version,omitempty"`
	OSAPILevel         int            `json:"os_api_level,omitempty"`
	DeviceName         string         `json:"device_name,omitempty"`
	SimInfo            map[string]any `json:"sim_info,omitempty"`
	NetworkInfo        map[string]any `json:"network_info,omitempty"`
	AppConfig          map[string]any `json:"app_config,omitempty"`
}

// Provider collects enrichment facts. Collect may fail; callers fall back to
// plain rendering.
type Provider interface {
	Collect(ctx context.Context) (Info, error)
}

// ProviderFunc adapts a function to the Provider interface.
type ProviderFunc func(ctx context.Context) (Info, error)

// Collect calls f.
func (f ProviderFunc) Collect(ctx context.Context) (Info, error) { return f(ctx) }

// Flags selects which sections of Info reach the payload.
type Flags struct {
	DeviceInfo  bool
	SimInfo     bool
	NetworkInfo bool
	AppConfig   bool
}

// Any reports whether at least one section is selected.
func (f Flags) Any() bool {
	return f.DeviceInfo || f.SimInfo || f.NetworkInfo || f.AppConfig
}

// Filter returns the device_info block for info restricted to flags.
// It returns nil when nothing is selected or nothing selected is present.
func Filter(info Info, flags Flags) map[string]any {
	if !flags.Any() {
		return nil
	}

	out := make(map[string]any)
	if flags.DeviceInfo {
		putString(out, "device_model", info.DeviceModel)
		putString(out, "device_manufacturer", info.DeviceManufacturer)
		putString(out, "device_brand", info.DeviceBrand)
		putString(out, "device_product", info.DeviceProduct)
		putString(out, "os_version", info.OSVersion)
		if info.OSAPILevel > 0 {
			out["os_api_level"] = info.OSAPILevel
		}
		putString(out, "device_name", info.DeviceName)
	}
	if flags.SimInfo && len(info.SimInfo) > 0 {
		out["sim_info"] = info.SimInfo
	}
	if flags.NetworkInfo && len(info.NetworkInfo) > 0 {
		out["network_info"] = info.NetworkInfo
	}
	if flags.AppConfig && len(info.AppConfig) > 0 {
		out["app_config"] = info.AppConfig
	}

	if len(out) == 0 {
		return nil
	}
	return out
}

func putString(m map[string]any, key, value string) {
	if value != "" {
		m[key] = value
	}
}

// StaticProvider reports facts fixed at startup plus a few live host values.
// Network is called on every Collect when Base carries no network_info.
type StaticProvider struct {
	Base    Info
	Network func() map[string]any
}

// NewStaticProvider returns a provider that reports base, filling the
// device name from the host name and the OS from the runtime when unset.
// Network facts are read live from the host interfaces.
func NewStaticProvider(base Info) *StaticProvider {
	if base.DeviceName == "" {
		if host, err := os.Hostname(); err == nil {
			base.DeviceName = host
		}
	}
	if base.OSVersion == "" {
		base.OSVersion = runtime.GOOS + "/" + runtime.GOARCH
	}
	return &StaticProvider{Base: base, Network: HostNetworkInfo}
}

// Collect returns a copy of the base facts.
func (p *StaticProvider) Collect(ctx context.Context) (Info, error) {
	if err := ctx.Err(); err != nil {
		return Info{}, err
	}
	info := p.Base
	info.SimInfo = copyMap(p.Base.SimInfo)
	info.NetworkInfo = copyMap(p.Base.NetworkInfo)
	if info.NetworkInfo == nil && p.Network != nil {
		info.NetworkInfo = p.Network()
	}
	info.AppConfig = copyMap(p.Base.AppConfig)
	return info, nil
}

func copyMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
