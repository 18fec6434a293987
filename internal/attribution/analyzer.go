package attribution

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/truecheckia/splitkit/internal/journey"
)

// MaxPaths bounds TopConversionPaths.
const MaxPaths = 20

// PathSeparator joins channel labels in a conversion path.
const PathSeparator = " > "

// Analyzer attributes converted journeys to channels and campaigns.
type Analyzer struct {
	halfLife         time.Duration
	conversionEvents []string
}

type Option func(*Analyzer)

func WithHalfLife(d time.Duration) Option { return func(a *Analyzer) { a.halfLife = d } }

// WithConversionEvents sets the events that mark a journey as converted.
func WithConversionEvents(names ...string) Option {
	return func(a *Analyzer) { a.conversionEvents = names }
}

func NewAnalyzer(opts ...Option) *Analyzer {
	a := &Analyzer{
		halfLife:         DefaultHalfLife,
		conversionEvents: []string{journey.EventSignup, journey.EventSubscription},
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Attribute splits value across tps with model m.
func (a *Analyzer) Attribute(m Model, tps []journey.Touchpoint, value float64, convertedAt time.Time) ([]float64, error) {
	switch m {
	case FirstTouch:
		return FirstTouchCredit(tps, value), nil
	case LastTouch:
		return LastTouchCredit(tps, value), nil
	case Linear:
		return LinearCredit(tps, value), nil
	case TimeDecay:
		return TimeDecayCredit(tps, value, convertedAt, a.halfLife), nil
	case PositionBased:
		return PositionBasedCredit(tps, value), nil
	}
	return nil, fmt.Errorf("unknown attribution model %q", m)
}

// Converted reports whether j fired a conversion event or earned revenue.
func (a *Analyzer) Converted(j *journey.Journey) bool {
	return j.TotalRevenue > 0 || j.HasEvent(a.conversionEvents...)
}

// Touchpoints returns the journey touchpoints, falling back to its
// attribution snapshot and finally to a single direct visit.
func Touchpoints(j *journey.Journey) []journey.Touchpoint {
	if len(j.Touchpoints) > 0 {
		out := make([]journey.Touchpoint, len(j.Touchpoints))
		copy(out, j.Touchpoints)
		sort.SliceStable(out, func(a, b int) bool { return out[a].Timestamp.Before(out[b].Timestamp) })
		return out
	}
	if at := j.Attribution; at != nil {
		return []journey.Touchpoint{{
			Channel:   journey.ClassifyChannel(at.Source, at.Medium),
			Source:    at.Source,
			Medium:    at.Medium,
			Campaign:  at.Campaign,
			Timestamp: at.CapturedAt,
		}}
	}
	return []journey.Touchpoint{{Channel: journey.ChannelDirect, Source: "direct", Medium: "none", Timestamp: j.FirstTouch}}
}

type ChannelStats struct {
	Channel string `json:"channel"`
	// Conversions is the attributed share of converted journeys.
	Conversions float64 `json:"conversions"`
	Revenue     float64 `json:"revenue"`
	Touchpoints int     `json:"touchpoints"`
}

type CampaignStats struct {
	Campaign    string  `json:"campaign"`
	Source      string  `json:"source"`
	Medium      string  `json:"medium"`
	Conversions float64 `json:"conversions"`
	Revenue     float64 `json:"revenue"`
	Touchpoints int     `json:"touchpoints"`
}

// credit runs fn for every touchpoint of every converted journey with the
// conversion and revenue credit of that touchpoint.
func (a *Analyzer) credit(m Model, journeys []*journey.Journey, fn func(tp journey.Touchpoint, conv, rev float64)) error {
	for _, j := range journeys {
		if j == nil || !a.Converted(j) {
			continue
		}
		tps := Touchpoints(j)
		at := j.ConversionTime(a.conversionEvents...)

		conv, err := a.Attribute(m, tps, 1, at)
		if err != nil {
			return err
		}
		rev, err := a.Attribute(m, tps, j.TotalRevenue, at)
		if err != nil {
			return err
		}
		for i, tp := range tps {
			fn(tp, conv[i], rev[i])
		}
	}
	return nil
}

// AnalyzeChannels rolls attributed conversions and revenue up by channel,
// highest revenue first.
func (a *Analyzer) AnalyzeChannels(journeys []*journey.Journey, m Model) ([]ChannelStats, error) {
	byChannel := make(map[string]*ChannelStats)
	err := a.credit(m, journeys, func(tp journey.Touchpoint, conv, rev float64) {
		s, ok := byChannel[tp.Channel]
		if !ok {
			s = &ChannelStats{Channel: tp.Channel}
			byChannel[tp.Channel] = s
		}
		s.Conversions += conv
		s.Revenue += rev
		s.Touchpoints++
	})
	if err != nil {
		return nil, err
	}

	out := make([]ChannelStats, 0, len(byChannel))
	for _, s := range byChannel {
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Revenue != out[j].Revenue {
			return out[i].Revenue > out[j].Revenue
		}
		if out[i].Conversions != out[j].Conversions {
			return out[i].Conversions > out[j].Conversions
		}
		return out[i].Channel < out[j].Channel
	})
	return out, nil
}

// AnalyzeCampaigns rolls credit up by campaign. Touchpoints without a
// campaign are skipped.
func (a *Analyzer) AnalyzeCampaigns(journeys []*journey.Journey, m Model) ([]CampaignStats, error) {
	byCampaign := make(map[string]*CampaignStats)
	err := a.credit(m, journeys, func(tp journey.Touchpoint, conv, rev float64) {
		if tp.Campaign == "" {
			return
		}
		key := tp.Campaign + "\x00" + tp.Source + "\x00" + tp.Medium
		s, ok := byCampaign[key]
		if !ok {
			s = &CampaignStats{Campaign: tp.Campaign, Source: tp.Source, Medium: tp.Medium}
			byCampaign[key] = s
		}
		s.Conversions += conv
		s.Revenue += rev
		s.Touchpoints++
	})
	if err != nil {
		return nil, err
	}

	out := make([]CampaignStats, 0, len(byCampaign))
	for _, s := range byCampaign {
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Revenue != out[j].Revenue {
			return out[i].Revenue > out[j].Revenue
		}
		if out[i].Conversions != out[j].Conversions {
			return out[i].Conversions > out[j].Conversions
		}
		return out[i].Campaign < out[j].Campaign
	})
	return out, nil
}

type ModelReport struct {
	Model    Model          `json:"model"`
	Channels []ChannelStats `json:"channels"`
}

// CompareModels runs AnalyzeChannels once per model.
func (a *Analyzer) CompareModels(journeys []*journey.Journey) ([]ModelReport, error) {
	out := make([]ModelReport, 0, len(Models))
	for _, m := range Models {
		channels, err := a.AnalyzeChannels(journeys, m)
		if err != nil {
			return nil, err
		}
		out = append(out, ModelReport{Model: m, Channels: channels})
	}
	return out, nil
}

type Path struct {
	Path           string  `json:"path"`
	Conversions    int     `json:"conversions"`
	Revenue        float64 `json:"revenue"`
	AvgTouchpoints float64 `json:"avg_touchpoints"`
}

// TopConversionPaths counts the channel sequences of converted journeys and
// returns the most frequent ones.
func (a *Analyzer) TopConversionPaths(journeys []*journey.Journey) []Path {
	byPath := make(map[string]*Path)
	touches := make(map[string]int)
	for _, j := range journeys {
		if j == nil || !a.Converted(j) {
			continue
		}
		tps := Touchpoints(j)
		labels := make([]string, len(tps))
		for i, tp := range tps {
			labels[i] = tp.Channel
		}
		key := strings.Join(labels, PathSeparator)

		p, ok := byPath[key]
		if !ok {
			p = &Path{Path: key}
			byPath[key] = p
		}
		p.Conversions++
		p.Revenue += j.TotalRevenue
		touches[key] += len(tps)
	}

	out := make([]Path, 0, len(byPath))
	for key, p := range byPath {
		p.AvgTouchpoints = float64(touches[key]) / float64(p.Conversions)
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Conversions != out[j].Conversions {
			return out[i].Conversions > out[j].Conversions
		}
		if out[i].Revenue != out[j].Revenue {
			return out[i].Revenue > out[j].Revenue
		}
		return out[i].Path < out[j].Path
	})
	if len(out) > MaxPaths {
		out = out[:MaxPaths]
	}
	return out
}
