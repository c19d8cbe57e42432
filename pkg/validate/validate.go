// Package validate lints game content beyond the hard schema checks the
// loaders enforce: dangling cross-references, unwinnable progressions
// and authoring oversights, reported per finding with a severity.
package validate

import (
	"fmt"
	"sort"

	"github.com/hackmesh/termhack/pkg/game"
	"github.com/hackmesh/termhack/pkg/missions"
)

// Category classifies the type of finding.
type Category int

const (
	CatIntegrity  Category = iota // broken cross-references
	CatProgression                // missions the player can never reach or finish
	CatAuthoring                  // oversights that hurt play but not correctness
)

func (c Category) String() string {
	switch c {
	case CatIntegrity:
		return "integrity"
	case CatProgression:
		return "progression"
	case CatAuthoring:
		return "authoring"
	default:
		return "unknown"
	}
}

// Severity indicates how serious a finding is.
type Severity int

const (
	SevError   Severity = iota // content will misbehave in play
	SevWarning                 // should be reviewed
	SevInfo                    // informational only
)

func (s Severity) String() string {
	switch s {
	case SevError:
		return "error"
	case SevWarning:
		return "warning"
	case SevInfo:
		return "info"
	default:
		return "unknown"
	}
}

// Finding is one lint result.
type Finding struct {
	Category    Category `json:"-"`
	CategoryStr string   `json:"category"`
	Severity    Severity `json:"-"`
	SeverityStr string   `json:"severity"`
	Mission     string   `json:"mission,omitempty"`
	Task        string   `json:"task,omitempty"`
	Subject     string   `json:"subject,omitempty"`
	Description string   `json:"description"`
}

// Checker inspects one aspect of the content set.
type Checker interface {
	Name() string
	Check(content *game.Content) []Finding
}

// Validator runs all checkers over a content set.
type Validator struct {
	checkers []Checker
	findings []Finding
}

// New returns a validator with the standard checker set.
func New() *Validator {
	return &Validator{
		checkers: []Checker{
			&IntegrityChecker{},
			&ProgressionChecker{},
			&AuthoringChecker{},
		},
	}
}

// Run executes every checker and returns the collected findings,
// ordered by severity then mission.
func (v *Validator) Run(content *game.Content) []Finding {
	v.findings = nil
	for _, c := range v.checkers {
		v.findings = append(v.findings, c.Check(content)...)
	}
	for i := range v.findings {
		v.findings[i].CategoryStr = v.findings[i].Category.String()
		v.findings[i].SeverityStr = v.findings[i].Severity.String()
	}
	sort.SliceStable(v.findings, func(i, j int) bool {
		if v.findings[i].Severity != v.findings[j].Severity {
			return v.findings[i].Severity < v.findings[j].Severity
		}
		return v.findings[i].Mission < v.findings[j].Mission
	})
	return v.findings
}

// Errors reports whether any finding is severity error.
func (v *Validator) Errors() bool {
	for _, f := range v.findings {
		if f.Severity == SevError {
			return true
		}
	}
	return false
}

// IntegrityChecker finds task matches and emails pointing at entities
// that do not exist. These break progression silently: the task can
// never fire.
type IntegrityChecker struct{}

func (c *IntegrityChecker) Name() string { return "integrity" }

func (c *IntegrityChecker) Check(content *game.Content) []Finding {
	var out []Finding
	add := func(m, task, subject, desc string) {
		out = append(out, Finding{
			Category: CatIntegrity, Severity: SevError,
			Mission: m, Task: task, Subject: subject, Description: desc,
		})
	}

	for _, m := range content.Missions.All() {
		for _, t := range m.Tasks {
			spec := t.Match
			switch spec.Kind {
			case missions.MatchSession:
				if content.World.GetHost(spec.Server) == nil {
					add(m.ID, t.ID, spec.Server, fmt.Sprintf("session match targets unknown server %q", spec.Server))
				}
			case missions.MatchFile:
				if spec.Host == "" {
					continue
				}
				h := content.World.GetHost(spec.Host)
				if h == nil {
					add(m.ID, t.ID, spec.Host, fmt.Sprintf("file match targets unknown host %q", spec.Host))
				} else if h.FindFile(spec.File) == nil {
					add(m.ID, t.ID, spec.File, fmt.Sprintf("host %q has no file %q", spec.Host, spec.File))
				}
			case missions.MatchEmail:
				if spec.Email != "" && content.Mail.Get(spec.Email) == nil {
					add(m.ID, t.ID, spec.Email, fmt.Sprintf("email match targets unknown email %q", spec.Email))
				}
				if spec.Mission != "" && content.Missions.Get(spec.Mission) == nil {
					add(m.ID, t.ID, spec.Mission, fmt.Sprintf("email match targets unknown mission %q", spec.Mission))
				}
			case missions.MatchCommand:
				if spec.OnHost != "" && content.World.GetHost(spec.OnHost) == nil {
					add(m.ID, t.ID, spec.OnHost, fmt.Sprintf("command match constrained to unknown host %q", spec.OnHost))
				}
			}
		}
	}
	return out
}

// ProgressionChecker finds missions the linear progression can never
// hand out: email-briefing tasks whose mission has no briefing mail,
// and file tasks against encrypted files when no mission path unlocks
// the crack tool first.
type ProgressionChecker struct{}

func (c *ProgressionChecker) Name() string { return "progression" }

func (c *ProgressionChecker) Check(content *game.Content) []Finding {
	var out []Finding

	// Commands granted by some mission's completion.
	grantedBy := make(map[string][]string)
	for _, m := range content.Missions.All() {
		for _, cmd := range m.UnlockCommands {
			grantedBy[cmd] = append(grantedBy[cmd], m.ID)
		}
	}

	for _, m := range content.Missions.All() {
		for _, t := range m.Tasks {
			spec := t.Match
			if spec.Kind == missions.MatchEmail && spec.Mission != "" {
				if len(content.Mail.ForMission(spec.Mission)) == 0 {
					out = append(out, Finding{
						Category: CatProgression, Severity: SevError,
						Mission: m.ID, Task: t.ID, Subject: spec.Mission,
						Description: fmt.Sprintf("task waits for mail of mission %q, which delivers none", spec.Mission),
					})
				}
			}
			if spec.Kind == missions.MatchFile && spec.Host != "" {
				h := content.World.GetHost(spec.Host)
				if h == nil {
					continue // integrity checker reports this
				}
				f := h.FindFile(spec.File)
				if f != nil && f.Encrypted && len(grantedBy["crack"]) == 0 {
					out = append(out, Finding{
						Category: CatProgression, Severity: SevWarning,
						Mission: m.ID, Task: t.ID, Subject: spec.File,
						Description: fmt.Sprintf("%q is encrypted but no mission ever unlocks the crack tool", spec.File),
					})
				}
			}
		}
	}
	return out
}

// AuthoringChecker flags oversights: missions without briefings or
// rewards, tasks without descriptions or hints, hosts no mission ever
// touches.
type AuthoringChecker struct{}

func (c *AuthoringChecker) Name() string { return "authoring" }

func (c *AuthoringChecker) Check(content *game.Content) []Finding {
	var out []Finding

	touched := make(map[string]bool)
	for _, m := range content.Missions.All() {
		if m.Reward == 0 {
			out = append(out, Finding{
				Category: CatAuthoring, Severity: SevWarning, Mission: m.ID,
				Description: "mission has no completion reward",
			})
		}
		if len(m.Briefing) == 0 && len(content.Mail.ForMission(m.ID)) == 0 {
			out = append(out, Finding{
				Category: CatAuthoring, Severity: SevWarning, Mission: m.ID,
				Description: "mission has neither a briefing nor briefing mail",
			})
		}
		for _, t := range m.Tasks {
			if t.Description == "" {
				out = append(out, Finding{
					Category: CatAuthoring, Severity: SevWarning, Mission: m.ID, Task: t.ID,
					Description: "task has no description; objectives will show a blank line",
				})
			}
			if len(t.Hints) == 0 {
				out = append(out, Finding{
					Category: CatAuthoring, Severity: SevInfo, Mission: m.ID, Task: t.ID,
					Description: "task has no hints",
				})
			}
			switch t.Match.Kind {
			case missions.MatchSession:
				touched[t.Match.Server] = true
			case missions.MatchFile:
				touched[t.Match.Host] = true
			}
		}
	}

	for _, h := range content.World.Hosts() {
		if !touched[h.ID] {
			out = append(out, Finding{
				Category: CatAuthoring, Severity: SevInfo, Subject: h.ID,
				Description: "no mission task ever references this host",
			})
		}
	}
	return out
}
