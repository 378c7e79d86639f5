package runtime

import (
	"datapulse/pkg/runtime/constant"
	"github.com/mitchellh/mapstructure"
	"k8s.io/klog/v2"
	"strconv"
	"strings"
)

type NameFilterFunc struct {
	Eq         string
	In         []string
	Contains   string
	StartsWith string
	EndsWith   string
}

// ScanFilter narrows scan results. Tag is either a plain full tag name or a
// NameFilterFunc shaped map. Query matches any column case-insensitively.
type ScanFilter struct {
	Tag   interface{} `json:"tag,omitempty"`
	Kind  string      `json:"kind,omitempty"`
	Query string      `json:"query,omitempty"`
}

type predicateScan func(r *ScanResult) bool

func ParseScanFilter(filter *ScanFilter) []predicateScan {
	predicates := make([]predicateScan, 0)

	// kind
	if len(filter.Kind) > 0 {
		kind, err := constant.ParsePointKind(filter.Kind)
		if err != nil {
			klog.V(3).InfoS("Failed to parse filter.kind", "err", err)
		} else {
			predicates = append(predicates, func(r *ScanResult) bool {
				return r.Kind == kind
			})
		}
	}

	// tag
	if filter.Tag != nil {
		if name, ok := filter.Tag.(string); ok {
			predicates = append(predicates, func(r *ScanResult) bool {
				return name == fullName(r)
			})
		} else {
			var ff NameFilterFunc
			if err := mapstructure.Decode(filter.Tag, &ff); err != nil {
				klog.V(3).InfoS("Failed to parse filter.tag", "err", err)
			}
			if len(ff.Eq) > 0 {
				predicates = append(predicates, func(r *ScanResult) bool {
					return ff.Eq == fullName(r)
				})
			}
			if len(ff.In) > 0 {
				predicates = append(predicates, func(r *ScanResult) bool {
					for _, name := range ff.In {
						if name == fullName(r) {
							return true
						}
					}
					return false
				})
			}
			if len(ff.Contains) > 0 {
				predicates = append(predicates, func(r *ScanResult) bool {
					return strings.Contains(fullName(r), ff.Contains)
				})
			}
			if len(ff.StartsWith) > 0 {
				predicates = append(predicates, func(r *ScanResult) bool {
					return strings.HasPrefix(fullName(r), strings.TrimSpace(ff.StartsWith))
				})
			}
			if len(ff.EndsWith) > 0 {
				predicates = append(predicates, func(r *ScanResult) bool {
					return strings.HasSuffix(fullName(r), strings.TrimSpace(ff.EndsWith))
				})
			}
		}
	}

	// free text, same columns the scan table shows
	if q := strings.ToLower(strings.TrimSpace(filter.Query)); len(q) > 0 {
		predicates = append(predicates, func(r *ScanResult) bool {
			columns := []string{strconv.Itoa(int(r.Address)), r.Kind.String(), r.Value.String()}
			if r.Tag != nil {
				columns = append(columns, r.Tag.DeviceName, r.Tag.TagName)
			}
			for _, c := range columns {
				if strings.Contains(strings.ToLower(c), q) {
					return true
				}
			}
			return false
		})
	}

	return predicates
}

// FilterScanResults keeps the results every predicate accepts, in order.
func FilterScanResults(results []ScanResult, filter *ScanFilter) []ScanResult {
	predicates := ParseScanFilter(filter)
	ret := make([]ScanResult, 0, len(results))
	for i := range results {
		isMatch := true
		for _, p := range predicates {
			if !p(&results[i]) {
				isMatch = false
				break
			}
		}
		if isMatch {
			ret = append(ret, results[i])
		}
	}
	return ret
}

func fullName(r *ScanResult) string {
	if r.Tag == nil {
		return ""
	}
	return r.Tag.FullName()
}
