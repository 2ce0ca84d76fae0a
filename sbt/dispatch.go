package sbt

import (
	"github.com/cockroachdb/errors"

	"github.com/gogpu/rtcore/gpu"
)

// Section selects count records of a table starting at First.
type Section struct {
	First int
	Count int
}

// Layout partitions one table into the groups a dispatch reads.
type Layout struct {
	RayGeneration int
	Miss          Section
	HitGroup      Section
	Callable      Section
}

// DefaultLayout returns the conventional layout: record 0 is ray
// generation, then misses records of miss shaders, then hits records of
// hit groups.
func DefaultLayout(misses, hits int) Layout {
	return Layout{
		RayGeneration: 0,
		Miss:          Section{First: 1, Count: misses},
		HitGroup:      Section{First: 1 + misses, Count: hits},
	}
}

// DispatchDesc composes a ray dispatch over width x height x depth rays
// from the sections of t described by l.
//
// Each section must start at a shader table aligned address, otherwise
// ErrMisaligned is returned. Tables whose stride is a multiple of the
// table alignment always satisfy this.
func (t *Table) DispatchDesc(pipeline gpu.PipelineState, l Layout, width, height, depth uint32) (gpu.DispatchRaysDesc, error) {
	if l.RayGeneration < 0 || l.RayGeneration >= t.count {
		return gpu.DispatchRaysDesc{}, errors.Wrapf(ErrIndex, "sbt %q: ray generation record %d", t.name, l.RayGeneration)
	}
	if err := t.checkAligned("ray generation", l.RayGeneration); err != nil {
		return gpu.DispatchRaysDesc{}, err
	}
	for _, s := range []struct {
		name string
		Section
	}{{"miss", l.Miss}, {"hit group", l.HitGroup}, {"callable", l.Callable}} {
		if s.Count == 0 {
			continue
		}
		if s.First < 0 || s.Count < 0 || s.First+s.Count > t.count {
			return gpu.DispatchRaysDesc{}, errors.Wrapf(ErrIndex, "sbt %q: %s section [%d, %d) of %d",
				t.name, s.name, s.First, s.First+s.Count, t.count)
		}
		if err := t.checkAligned(s.name, s.First); err != nil {
			return gpu.DispatchRaysDesc{}, err
		}
	}
	section := func(s Section) gpu.StridedRange {
		if s.Count == 0 {
			return gpu.StridedRange{}
		}
		return t.Range(s.First, s.Count)
	}
	return gpu.DispatchRaysDesc{
		Pipeline:      pipeline,
		RayGeneration: gpu.AddressRange{Start: t.Address(l.RayGeneration), Size: t.stride},
		Miss:          section(l.Miss),
		HitGroup:      section(l.HitGroup),
		Callable:      section(l.Callable),
		Width:         width,
		Height:        height,
		Depth:         max(depth, 1),
	}, nil
}

func (t *Table) checkAligned(section string, first int) error {
	if t.align == 0 {
		return nil
	}
	if addr := t.Address(first); addr%t.align != 0 {
		return errors.Wrapf(ErrMisaligned, "sbt %q: %s section at 0x%x, alignment %d",
			t.name, section, addr, t.align)
	}
	return nil
}
