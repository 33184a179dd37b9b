package domain

import (
	"maps"
	"slices"
	"strconv"
	"strings"
	"unicode"

	"github.com/docker/docker/api/types/swarm"
)

// Diff describes how a list option of a service is compared with the live service.
type Diff struct {
	// Live extracts the current values from the inspected service.
	Live func(swarm.Service) []string
	// Key normalizes a value, desired or live, for comparison.
	Key func(string) string
}

// Remove returns the comparison keys of the live values missing from desired,
// in live order. These are the values passed to the "-rm" flag of the option.
func (d Diff) Remove(live swarm.Service, desired []string) []string {
	want := make(map[string]struct{}, len(desired))
	for _, v := range desired {
		want[d.Key(v)] = struct{}{}
	}
	var remove []string
	for _, v := range d.Live(live) {
		key := d.Key(v)
		if _, ok := want[key]; ok {
			continue
		}
		if !slices.Contains(remove, key) {
			remove = append(remove, key)
		}
	}
	return remove
}

var (
	labelDiff = Diff{
		Live: func(s swarm.Service) []string { return mapPairs(s.Spec.Labels) },
		Key:  beforeEquals,
	}
	containerLabelDiff = Diff{
		Live: func(s swarm.Service) []string {
			if cs := s.Spec.TaskTemplate.ContainerSpec; cs != nil {
				return mapPairs(cs.Labels)
			}
			return nil
		},
		Key: beforeEquals,
	}
	envDiff = Diff{
		Live: func(s swarm.Service) []string {
			if cs := s.Spec.TaskTemplate.ContainerSpec; cs != nil {
				return cs.Env
			}
			return nil
		},
		Key: beforeEquals,
	}
	mountDiff = Diff{
		Live: func(s swarm.Service) []string {
			cs := s.Spec.TaskTemplate.ContainerSpec
			if cs == nil {
				return nil
			}
			targets := make([]string, 0, len(cs.Mounts))
			for _, m := range cs.Mounts {
				targets = append(targets, m.Target)
			}
			return targets
		},
		Key: mountTarget,
	}
	constraintDiff = Diff{
		Live: func(s swarm.Service) []string {
			if p := s.Spec.TaskTemplate.Placement; p != nil {
				return p.Constraints
			}
			return nil
		},
		Key: stripSpaces,
	}
	portDiff = Diff{
		Live: func(s swarm.Service) []string {
			if s.Spec.EndpointSpec == nil {
				return nil
			}
			targets := make([]string, 0, len(s.Spec.EndpointSpec.Ports))
			for _, p := range s.Spec.EndpointSpec.Ports {
				targets = append(targets, strconv.FormatUint(uint64(p.TargetPort), 10))
			}
			return targets
		},
		Key: portTarget,
	}
)

func mapPairs(m map[string]string) []string {
	pairs := make([]string, 0, len(m))
	for _, k := range slices.Sorted(maps.Keys(m)) {
		pairs = append(pairs, k+"="+m[k])
	}
	return pairs
}

func beforeEquals(v string) string {
	key, _, _ := strings.Cut(v, "=")
	return key
}

func stripSpaces(v string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, v)
}

// csvField returns the value of the first key=value field in v named one of keys.
func csvField(v string, keys ...string) (string, bool) {
	for _, field := range strings.Split(v, ",") {
		k, val, ok := strings.Cut(strings.TrimSpace(field), "=")
		if ok && slices.Contains(keys, k) {
			return strings.Trim(val, `"'`), true
		}
	}
	return "", false
}

// mountTarget returns the container path of a --mount value such as
// "type=volume,source=data,destination=/data". Plain paths are returned as is.
func mountTarget(v string) string {
	if target, ok := csvField(v, "destination", "target", "dst"); ok {
		return target
	}
	return strings.Trim(v, `"'`)
}

// portTarget returns the container port of a --publish value such as
// "8080:80/tcp" or "published=8080,target=80".
func portTarget(v string) string {
	if strings.Contains(v, "=") {
		target, _ := csvField(v, "target")
		return target
	}
	v, _, _ = strings.Cut(v, "/")
	if i := strings.LastIndexByte(v, ':'); i >= 0 {
		v = v[i+1:]
	}
	return v
}
