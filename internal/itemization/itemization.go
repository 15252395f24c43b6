// Package itemization summarizes a normalized timeline into per-hero purchase lists.
package itemization

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"replay-analyzer/internal/timeline"
)

// DefaultTicksPerMinute matches the tick rate the replay parser emits
const DefaultTicksPerMinute = 60

var itemNoise = regexp.MustCompile(`CDOTA_Item_|(\(\d+\).*)`)

// CleanItemName strips the engine class prefix and any "(n)..." suffix
func CleanItemName(name string) string {
	return itemNoise.ReplaceAllString(name, "")
}

// CleanHeroName strips the hero unit class prefix
func CleanHeroName(name string) string {
	return strings.ReplaceAll(name, "CDOTA_Unit_Hero_", "")
}

// MinuteGroup holds the items bought during one game minute
type MinuteGroup struct {
	Minute int64    `json:"minute"`
	Items  []string `json:"items"`
}

// HeroItems is one hero's purchases grouped by minute
type HeroItems struct {
	Hero  string        `json:"hero"`
	Items []MinuteGroup `json:"items"`
}

// Purchase is a single entry of a build path
type Purchase struct {
	Tick int64  `json:"tick"`
	Item string `json:"item"`
}

// HeroPath is one hero's build path
type HeroPath struct {
	Hero string     `json:"hero"`
	Path []Purchase `json:"path"`
}

type purchase struct {
	minute int64
	tick   int64
	item   string
}

func purchases(e timeline.EntityTimeline, ticksPerMinute int64) []purchase {
	var out []purchase
	for _, obj := range e.Items.Objects {
		name := CleanItemName(obj.Name)
		for _, ev := range obj.History.Events {
			if ev.Status != timeline.StatusPurchased {
				continue
			}
			out = append(out, purchase{minute: ev.Tick / ticksPerMinute, tick: ev.Tick, item: name})
		}
	}
	return out
}

// Summarize groups every hero's purchases by minute. Within a hero, groups are
// ordered by minute and items inside a group by name. Heroes without purchases
// are left out. A non-positive ticksPerMinute selects DefaultTicksPerMinute.
func Summarize(tl timeline.Timeline, ticksPerMinute int64) []HeroItems {
	if ticksPerMinute <= 0 {
		ticksPerMinute = DefaultTicksPerMinute
	}

	var out []HeroItems
	for _, e := range tl.Entities {
		bought := purchases(e, ticksPerMinute)
		if len(bought) == 0 {
			continue
		}
		sort.SliceStable(bought, func(i, j int) bool {
			if bought[i].minute != bought[j].minute {
				return bought[i].minute < bought[j].minute
			}
			return bought[i].item < bought[j].item
		})

		hero := HeroItems{Hero: CleanHeroName(e.HeroName)}
		for _, p := range bought {
			n := len(hero.Items)
			if n == 0 || hero.Items[n-1].Minute != p.minute {
				hero.Items = append(hero.Items, MinuteGroup{Minute: p.minute})
				n++
			}
			hero.Items[n-1].Items = append(hero.Items[n-1].Items, p.item)
		}
		out = append(out, hero)
	}
	return out
}

// BuildPath returns an entity's purchases ordered by tick
func BuildPath(e timeline.EntityTimeline) []Purchase {
	bought := purchases(e, DefaultTicksPerMinute)
	sort.SliceStable(bought, func(i, j int) bool { return bought[i].tick < bought[j].tick })

	path := make([]Purchase, 0, len(bought))
	for _, p := range bought {
		path = append(path, Purchase{Tick: p.tick, Item: p.item})
	}
	return path
}

// BuildPaths returns the build path of every hero with at least one purchase,
// in roster order
func BuildPaths(tl timeline.Timeline) []HeroPath {
	var out []HeroPath
	for _, e := range tl.Entities {
		path := BuildPath(e)
		if len(path) == 0 {
			continue
		}
		out = append(out, HeroPath{Hero: CleanHeroName(e.HeroName), Path: path})
	}
	return out
}

// Format renders a summary as the plain-text itemization report
func Format(summary []HeroItems) string {
	var sb strings.Builder
	for _, hero := range summary {
		fmt.Fprintf(&sb, "\n %s: ", hero.Hero)
		lines := make([]string, 0, len(hero.Items))
		for _, group := range hero.Items {
			lines = append(lines, fmt.Sprintf("\n min %d > %s", group.Minute, strings.Join(group.Items, ", ")))
		}
		sb.WriteString(strings.Join(lines, " "))
		sb.WriteString("\n")
	}
	return sb.String()
}
