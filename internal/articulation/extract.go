package articulation

import (
	"encoding/json"
	"regexp"
	"strings"
	"sync"

	"gridnerd/internal/logging"
	"gridnerd/internal/tools"

	"gopkg.in/yaml.v3"
)

// =============================================================================
// EXTRACTION PIPELINE - plan text to commands
// =============================================================================
// Tiers run from most to least structured. A tier runs only when every tier before
// it found nothing, so a well-formed plan is never second-guessed by the heuristics.
// An empty result is a valid outcome, not an error.

// Extractor is one tier of the cascade.
type Extractor interface {
	Name() string
	Extract(plan string) []tools.Command
}

// Tier names reported in Extraction.Tier and PipelineStats.
const (
	TierStructured = "structured"
	TierPattern    = "pattern"
	TierHeuristic  = "heuristic"
)

// Extraction is the outcome of one pipeline run.
type Extraction struct {
	Commands []tools.Command
	Tier     string // empty when nothing was extracted
}

// PipelineStats tracks extraction statistics for monitoring.
type PipelineStats struct {
	TotalProcessed int            `json:"total_processed"`
	Empty          int            `json:"empty"`
	ByTier         map[string]int `json:"by_tier"`
	Commands       int            `json:"commands"`
}

// Pipeline runs its tiers in order until one yields commands.
type Pipeline struct {
	tiers []Extractor

	mu    sync.Mutex
	stats PipelineStats
}

// DefaultTiers returns the standard cascade: fenced blocks, phrase templates, heuristic.
func DefaultTiers() []Extractor {
	return []Extractor{
		BlockExtractor{},
		NewPatternExtractor(DefaultPatterns),
		HeuristicExtractor{},
	}
}

// NewPipeline creates a pipeline. No tiers means DefaultTiers.
func NewPipeline(tiers ...Extractor) *Pipeline {
	if len(tiers) == 0 {
		tiers = DefaultTiers()
	}
	return &Pipeline{tiers: tiers, stats: PipelineStats{ByTier: map[string]int{}}}
}

// Extract runs the cascade over plan.
func (p *Pipeline) Extract(plan string) Extraction {
	result := Extraction{}
	for _, tier := range p.tiers {
		cmds := tier.Extract(plan)
		if len(cmds) > 0 {
			result = Extraction{Commands: cmds, Tier: tier.Name()}
			break
		}
		logging.ArticulationDebug("extraction tier %s found nothing", tier.Name())
	}

	p.mu.Lock()
	p.stats.TotalProcessed++
	if result.Tier == "" {
		p.stats.Empty++
	} else {
		p.stats.ByTier[result.Tier]++
		p.stats.Commands += len(result.Commands)
	}
	p.mu.Unlock()

	logging.Articulation("extracted %d command(s) via %q", len(result.Commands), result.Tier)
	return result
}

// Stats returns a copy of the pipeline statistics.
func (p *Pipeline) Stats() PipelineStats {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := p.stats
	out.ByTier = make(map[string]int, len(p.stats.ByTier))
	for k, v := range p.stats.ByTier {
		out.ByTier[k] = v
	}
	return out
}

// ResetStats clears the statistics.
func (p *Pipeline) ResetStats() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stats = PipelineStats{ByTier: map[string]int{}}
}

var defaultPipeline = NewPipeline()

// ExtractCommands runs the default pipeline and returns only the commands.
func ExtractCommands(plan string) []tools.Command {
	return defaultPipeline.Extract(plan).Commands
}

// =============================================================================
// TIER 1 - fenced structured blocks
// =============================================================================

// fenceRe matches ```tag\n body ``` and untagged ``` body ```.
var fenceRe = regexp.MustCompile("(?s)```(?:([A-Za-z0-9_+.-]+)[ \\t]*\\r?\\n)?(.*?)```")

// inlineTagRe splits an inline tag from its body, as in ```json {"type": ...}```.
var inlineTagRe = regexp.MustCompile(`(?s)^([A-Za-z0-9_+.-]+)\s+([\[{].*)$`)

// BlockExtractor decodes fenced blocks. yaml/yml blocks are decoded as YAML,
// all others as JSON. Undecodable blocks and objects without "type" are skipped.
type BlockExtractor struct{}

func (BlockExtractor) Name() string { return TierStructured }

func (BlockExtractor) Extract(plan string) []tools.Command {
	var out []tools.Command
	for _, m := range fenceRe.FindAllStringSubmatch(plan, -1) {
		tag, body := strings.ToLower(m[1]), strings.TrimSpace(m[2])
		if tag == "" {
			if im := inlineTagRe.FindStringSubmatch(body); im != nil {
				tag, body = strings.ToLower(im[1]), im[2]
			}
		}
		if body == "" {
			continue
		}

		var value any
		var err error
		switch tag {
		case "yaml", "yml":
			err = yaml.Unmarshal([]byte(body), &value)
		default:
			err = json.Unmarshal([]byte(body), &value)
		}
		if err != nil {
			logging.ArticulationDebug("skipping %q block: %v", tag, err)
			continue
		}
		out = append(out, commandsFromValue(value)...)
	}
	return out
}

func commandsFromValue(v any) []tools.Command {
	if list, ok := v.([]any); ok {
		var out []tools.Command
		for _, item := range list {
			if cmd, ok := tools.FromValue(item); ok {
				out = append(out, cmd)
			}
		}
		return out
	}
	if cmd, ok := tools.FromValue(v); ok {
		return []tools.Command{cmd}
	}
	return nil
}

// =============================================================================
// TIER 2 - natural-language phrase templates
// =============================================================================

// PatternRule maps a command type to the templates that produce it.
type PatternRule struct {
	Type      string
	Templates []string
}

// DefaultPatterns is the phrase table. create_formula and format_cells are not
// executable kinds; the dispatcher reports them as unrecognized.
var DefaultPatterns = []PatternRule{
	{"insert_data", []string{`insert\s+(.+?)\s+into\s+(.+)`, `put\s+(.+?)\s+in\s+(.+)`, `add\s+(.+?)\s+to\s+(.+)`}},
	{"create_formula", []string{`create\s+formula\s+(.+?)\s+in\s+(.+)`, `calculate\s+(.+?)\s+in\s+(.+)`, `compute\s+(.+?)\s+in\s+(.+)`}},
	{"format_cells", []string{`format\s+(.+?)\s+as\s+(.+)`, `set\s+(.+?)\s+format\s+to\s+(.+)`, `style\s+(.+?)\s+with\s+(.+)`}},
	{"create_chart", []string{`create\s+(.+?)\s+chart\s+from\s+(.+)`, `graph\s+(.+?)\s+using\s+(.+)`, `visualize\s+(.+?)\s+with\s+(.+)`}},
	{"sort_data", []string{`sort\s+(.+?)\s+by\s+(.+)`, `order\s+(.+?)\s+using\s+(.+)`, `arrange\s+(.+?)\s+by\s+(.+)`}},
	{"filter_data", []string{`filter\s+(.+?)\s+by\s+(.+)`, `show\s+only\s+(.+?)\s+from\s+(.+)`, `find\s+(.+?)\s+in\s+(.+)`}},
}

type compiledRule struct {
	typ       string
	templates []*regexp.Regexp
}

// PatternExtractor emits one positional command per template match.
type PatternExtractor struct {
	rules []compiledRule
}

// NewPatternExtractor compiles rules case-insensitively. It panics on an invalid
// template, like regexp.MustCompile.
func NewPatternExtractor(rules []PatternRule) *PatternExtractor {
	pe := &PatternExtractor{}
	for _, r := range rules {
		cr := compiledRule{typ: r.Type}
		for _, t := range r.Templates {
			cr.templates = append(cr.templates, regexp.MustCompile("(?i)"+t))
		}
		pe.rules = append(pe.rules, cr)
	}
	return pe
}

func (*PatternExtractor) Name() string { return TierPattern }

func (pe *PatternExtractor) Extract(plan string) []tools.Command {
	var out []tools.Command
	for _, rule := range pe.rules {
		for _, re := range rule.templates {
			for _, m := range re.FindAllStringSubmatch(plan, -1) {
				groups := m[1:]
				if len(groups) < 2 {
					continue
				}
				out = append(out, tools.Command{
					Type:       rule.typ,
					Params:     map[string]any{},
					Positional: append([]string(nil), groups...),
				})
			}
		}
	}
	return out
}

// =============================================================================
// TIER 3 - cell reference plus formula heuristic
// =============================================================================

var (
	cellRefRe = regexp.MustCompile(`([A-Z]+[0-9]+(?::[A-Z]+[0-9]+)?)`)
	formulaRe = regexp.MustCompile(`=([^=\n]+)`)
)

// HeuristicExtractor pairs the first cell reference with the first formula text.
type HeuristicExtractor struct{}

func (HeuristicExtractor) Name() string { return TierHeuristic }

func (HeuristicExtractor) Extract(plan string) []tools.Command {
	cell := cellRefRe.FindString(plan)
	fm := formulaRe.FindStringSubmatch(plan)
	if cell == "" || fm == nil {
		return nil
	}
	return []tools.Command{tools.NewCommand(tools.KindInsertFormula, map[string]any{
		"cell":    cell,
		"formula": "=" + strings.TrimSpace(fm[1]),
	})}
}
