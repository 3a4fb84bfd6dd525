package progress

import (
	"fmt"
	"strings"
)

const stepBarWidth = 30

// StepBar displays diffusion-step progress, e.g.
// "restoring  40% ▕████████              ▏  4/10"
type StepBar struct {
	message string
	current int
	total   int
}

func NewStepBar(message string, total int) *StepBar {
	return &StepBar{message: message, total: total}
}

func (s *StepBar) Set(current int) {
	if current > s.total {
		current = s.total
	}
	s.current = current
}

func (s *StepBar) String() string {
	percent := float64(s.current) / float64(s.total) * 100
	filled := stepBarWidth * s.current / s.total

	return fmt.Sprintf("%s %3.0f%% ▕%s%s▏ %d/%d",
		s.message, percent,
		strings.Repeat("█", filled), strings.Repeat(" ", stepBarWidth-filled),
		s.current, s.total)
}
