package device

import "github.com/cochaviz/dinghy/internal/platform"

type compatKey struct {
	device   Kind
	platform platform.Kind
}

type compatRule func(d Device, p platform.Platform) bool

// compatibility lists the (device, platform) pairs that can ever match.
// Pairs missing from the table are incompatible.
var compatibility = map[compatKey]compatRule{
	{KindHost, platform.KindHost}:       func(Device, platform.Platform) bool { return true },
	{KindAndroid, platform.KindRegular}: tripleSupported,
	{KindSSH, platform.KindRegular}:     boundOrTripleSupported,
	{KindSSH, platform.KindHost}:        boundOrTripleSupported,
	{KindIos, platform.KindIos}:         tripleSupported,
}

// Compatible reports whether d can run the output of p.
func Compatible(d Device, p platform.Platform) bool {
	rule, ok := compatibility[compatKey{d.Kind(), p.Kind()}]
	if !ok {
		return false
	}
	return rule(d, p)
}

func tripleSupported(d Device, p platform.Platform) bool {
	return containsTriple(d.Triples(), p.Triple())
}

// platformBound is implemented by devices configured for one platform.
type platformBound interface {
	BoundPlatform() string
}

func boundOrTripleSupported(d Device, p platform.Platform) bool {
	if b, ok := d.(platformBound); ok && b.BoundPlatform() != "" && b.BoundPlatform() == p.ID() {
		return true
	}
	return p.Triple() != "" && tripleSupported(d, p)
}
