// Package synopsis classifies a provider-returned description as either a
// series-level overview or a single-volume blurb. Volume blurbs are
// rejected by the enrichment loop so a series never carries one book's
// marketing copy as its description.
package synopsis

import (
	"regexp"
	"strings"
)

// Options carries the classifier's feature lists. The defaults encode the
// phrases that reliably separate volume blurbs from series overviews;
// callers can extend or replace them without touching call sites.
type Options struct {
	// Substrings that mark an explicit series-overview section. Any hit
	// accepts the text outright.
	SectionMarkers []string
	// Regular expressions whose matches count as single-volume signals.
	VolumePatterns []string
	// Substrings whose presence counts as a single-volume signal.
	VolumePhrases []string
	// Substrings whose presence counts as a series-level signal.
	SeriesPhrases []string
}

func (o Options) withDefaults() Options {
	if o.SectionMarkers == nil {
		o.SectionMarkers = []string{"about the series"}
	}
	if o.VolumePatterns == nil {
		o.VolumePatterns = []string{`book \d+ (of|in)`, `volume \d+ (of|in)`}
	}
	if o.VolumePhrases == nil {
		o.VolumePhrases = []string{"grab your copy", "the latest installment", "the latest instalment"}
	}
	if o.SeriesPhrases == nil {
		o.SeriesPhrases = []string{"series", "saga", "trilogy", "chronicles"}
	}
	return o
}

type Classifier struct {
	sectionMarkers []string
	volumePatterns []*regexp.Regexp
	volumePhrases  []string
	seriesPhrases  []string
}

func New(opts Options) *Classifier {
	opts = opts.withDefaults()
	c := &Classifier{
		sectionMarkers: opts.SectionMarkers,
		volumePhrases:  opts.VolumePhrases,
		seriesPhrases:  opts.SeriesPhrases,
	}
	for _, p := range opts.VolumePatterns {
		c.volumePatterns = append(c.volumePatterns, regexp.MustCompile(p))
	}
	return c
}

// IsSeriesDescription reports whether text reads as a series-level
// overview. Empty text is never usable. An explicit series-overview
// section accepts immediately; otherwise the text is accepted unless its
// single-volume signals outnumber its series-level signals. seriesName is
// optional and, when present in the text, counts as a series-level signal.
func (c *Classifier) IsSeriesDescription(text, seriesName string) bool {
	lower := strings.ToLower(strings.TrimSpace(text))
	if lower == "" {
		return false
	}

	for _, marker := range c.sectionMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}

	volume := 0
	for _, re := range c.volumePatterns {
		if re.MatchString(lower) {
			volume++
		}
	}
	for _, phrase := range c.volumePhrases {
		if strings.Contains(lower, phrase) {
			volume++
		}
	}

	series := 0
	for _, phrase := range c.seriesPhrases {
		if strings.Contains(lower, phrase) {
			series++
		}
	}
	if name := strings.ToLower(strings.TrimSpace(seriesName)); name != "" && strings.Contains(lower, name) {
		series++
	}

	return volume <= series
}
