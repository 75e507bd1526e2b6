package strategy

import (
	"fmt"
	"time"

	"gopkg.in/yaml.v3"

	"swing-backtest/internal/model"
)

// NameCalendar is the registry name of Calendar.
const NameCalendar = "calendar"

// ReasonWindowEnd is the exit reason at the end of a calendar window.
const ReasonWindowEnd = "window end"

// Window is a hold period. Entry happens on the bar dated Start and exit on
// the bar dated End; a window whose dates are not trading days never fires.
type Window struct {
	Start time.Time
	End   time.Time
}

// WindowSpec is the YAML form of a Window (dates as YYYY-MM-DD).
type WindowSpec struct {
	Start string `yaml:"start" validate:"required,datetime=2006-01-02"`
	End   string `yaml:"end" validate:"required,datetime=2006-01-02"`
}

// CalendarParams configures Calendar.
type CalendarParams struct {
	Timeframe model.Timeframe `yaml:"timeframe" validate:"oneof=daily weekly"`
	Windows   []WindowSpec    `yaml:"windows" validate:"required,min=1,dive"`
}

// DefaultWindows are hindsight-picked hold periods on a midcap
// index, used as an upper-bound benchmark.
func DefaultWindows() []Window {
	return []Window{
		{model.Date(2013, time.August, 28), model.Date(2014, time.July, 7)},
		{model.Date(2016, time.February, 29), model.Date(2016, time.October, 25)},
		{model.Date(2016, time.December, 27), model.Date(2018, time.January, 8)},
		{model.Date(2020, time.March, 24), model.Date(2021, time.October, 18)},
		{model.Date(2022, time.June, 20), model.Date(2022, time.December, 14)},
		{model.Date(2023, time.March, 28), model.Date(2024, time.September, 24)},
	}
}

// Calendar holds the index only during fixed date windows.
type Calendar struct {
	tf      model.Timeframe
	windows []Window
	idx     int
}

// NewCalendar creates the strategy.
func NewCalendar(tf model.Timeframe, windows []Window) *Calendar {
	return &Calendar{tf: tf, windows: windows}
}

func newCalendarFromYAML(params *yaml.Node) (Strategy, error) {
	p := CalendarParams{Timeframe: model.Daily}
	for _, w := range DefaultWindows() {
		p.Windows = append(p.Windows, WindowSpec{Start: w.Start.Format(time.DateOnly), End: w.End.Format(time.DateOnly)})
	}
	// A windows list in params replaces the defaults.
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}

	windows := make([]Window, 0, len(p.Windows))
	for i, w := range p.Windows {
		start, err := time.Parse(time.DateOnly, w.Start)
		if err != nil {
			return nil, fmt.Errorf("window %d: %w", i, err)
		}
		end, err := time.Parse(time.DateOnly, w.End)
		if err != nil {
			return nil, fmt.Errorf("window %d: %w", i, err)
		}
		if !end.After(start) {
			return nil, fmt.Errorf("window %d: end %s not after start %s", i, w.End, w.Start)
		}
		windows = append(windows, Window{Start: start, End: end})
	}
	return NewCalendar(p.Timeframe, windows), nil
}

func (s *Calendar) Name() string               { return NameCalendar }
func (s *Calendar) Timeframe() model.Timeframe { return s.tf }

func (s *Calendar) OnBar(bar model.Bar, book *Book) error {
	i := s.idx
	s.idx++
	if i == 0 {
		return nil
	}

	if book.State() != Flat {
		for _, w := range s.windows {
			if bar.Date.Equal(w.End) {
				return book.Close(model.LegPrimary, bar.Date, bar.Close, ReasonWindowEnd)
			}
		}
		return nil
	}
	for _, w := range s.windows {
		if bar.Date.Equal(w.Start) {
			return book.Open(model.LegPrimary, bar.Date, bar.Close)
		}
	}
	return nil
}
