package pipeline

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/mohammad-safakhou/ideascope/config"
	"github.com/mohammad-safakhou/ideascope/internal/forum"
	"github.com/mohammad-safakhou/ideascope/internal/interact"
	"github.com/mohammad-safakhou/ideascope/internal/llm"
	"github.com/mohammad-safakhou/ideascope/internal/schema"
)

const reportKey = "report"

// stubGen answers by schema name. Scripted outputs are consumed in order and
// the last one repeats; fn overrides them when set.
type stubGen struct {
	mu      sync.Mutex
	outputs map[string][]string
	fn      map[string]func(prompt string) (string, error)
	errs    map[string]error
	calls   map[string]int
	prompts map[string][]string
}

func newStubGen() *stubGen {
	g := &stubGen{
		outputs: map[string][]string{},
		fn:      map[string]func(string) (string, error){},
		errs:    map[string]error{},
		calls:   map[string]int{},
		prompts: map[string][]string{},
	}
	g.outputs[clarifierSchema.Name] = []string{clarifierJSON("complete", "problem", "")}
	g.outputs[suggestionSchema.Name] = []string{suggestionsJSON}
	g.outputs[variationsSchema.Name] = []string{variationsJSON}
	g.outputs[critiqueSchema.Name] = []string{critiqueJSON}
	g.outputs[questionsSchema.Name] = []string{questionsJSON}
	g.outputs[validationSchema.Name] = []string{validationJSON}
	g.outputs[findingsSchema.Name] = []string{findingsJSON}
	g.outputs[realityCheckSchema.Name] = []string{realityJSON}
	g.outputs[reportKey] = []string{"# Report\n\nProceed with a pilot."}
	return g
}

func (g *stubGen) set(name string, outs ...string) { g.outputs[name] = outs }

func (g *stubGen) count(name string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls[name]
}

func (g *stubGen) Generate(ctx context.Context, _ llm.Task, _ string, prompt string, s *schema.Schema) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	name := reportKey
	if s != nil {
		name = s.Name
	}
	g.mu.Lock()
	g.calls[name]++
	n := g.calls[name]
	g.prompts[name] = append(g.prompts[name], prompt)
	fn := g.fn[name]
	err := g.errs[name]
	outs := g.outputs[name]
	g.mu.Unlock()

	if fn != nil {
		return fn(prompt)
	}
	if err != nil {
		return "", err
	}
	if len(outs) == 0 {
		return "", nil
	}
	if n > len(outs) {
		n = len(outs)
	}
	return outs[n-1], nil
}

func (g *stubGen) GenerateRecord(ctx context.Context, task llm.Task, system, prompt string, s *schema.Schema) (schema.Record, schema.Report, error) {
	raw, err := g.Generate(ctx, task, system, prompt, s)
	if err != nil {
		return nil, schema.Report{Schema: s.Name}, err
	}
	return schema.Repair(raw, s)
}

func clarifierJSON(status, category, question string) string {
	if question == "" {
		question = "Who is the first customer?"
	}
	return fmt.Sprintf(`{"status":%q,"clarified_idea":{"title":"MealMate","problem":"Families waste time planning meals",`+
		`"target_users":"Busy parents","solution":"Weekly plan with a grocery list","value_proposition":"Saves two hours a week",`+
		`"business_model":"Subscription","keywords":["meal planning","grocery list"],"scopes":["mealprep","parenting"],"assumptions":["parents cook at home"]},`+
		`"next_question":{"question":%q,"rationale":"scope the audience","category":%q}}`, status, question, category)
}

const (
	suggestionsJSON = `{"suggestions":[{"text":"Parents of toddlers","rationale":"most time pressed","tier":"conservative"},` +
		`{"text":"All dual-income households","rationale":"bigger market","tier":"balanced"},` +
		`{"text":"Corporate wellness programs","rationale":"B2B upside","tier":"ambitious"}]}`
	variationsJSON = "Here you go:\n```json\n" + `{"variations":[{"title":"MealMate for diets","description":"Plans for dietary needs","target_segment":"Allergy families","differentiator":"Medical-grade filters"}]}` + "\n```"
	critiqueJSON   = `{"summary":"Crowded but real need","strengths":["clear pain"],"weaknesses":["many competitors"],"risks":["retention"],"competitors":["Mealime"],"verdict":"Moderate risk","score":"6/10"}`
	questionsJSON  = `{"questions":[{"question":"How do you plan meals today?","purpose":"baseline","category":"problem"},{"question":"Would you pay $5 a month?","purpose":"pricing","category":"monetization"}]}`
	validationJSON = `{"validation":{"scores":{"problem":8,"market":6,"solution":7,"feasibility":9,"monetization":5},"overall":7,"recommendation":"refine","summary":"Promising",` +
		`"roadmap":[{"phase":"Discovery","goal":"Interview 20 parents","duration":"2 weeks","milestones":["20 interviews"]}]}}`
	findingsJSON = `{"mentions":3,"positive":2,"negative":1,"pain_points":2,"demand_rate":0.4,"sentiment":0.2,"intensity":0.5,` +
		`"complaints":["planning takes too long"],"themes":["time"],"opportunities":["shared lists"]}`
	realityJSON = `{"verdict":"mixed","reality_check":"Some demand, strong competition","evidence":["planning takes too long"]}`
)

type stubSearcher struct {
	mu    sync.Mutex
	docs  []forum.Document
	err   error
	calls int
	last  forum.Query
}

func (s *stubSearcher) Search(_ context.Context, q forum.Query) (forum.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	s.last = q
	if s.err != nil {
		return forum.Result{}, s.err
	}
	return forum.Result{Query: q, Documents: s.docs}, nil
}

func makeDocs(n int) []forum.Document {
	docs := make([]forum.Document, n)
	for i := range docs {
		docs[i] = forum.Document{ID: fmt.Sprintf("t3_%d", i), Title: fmt.Sprintf("post %d", i), Score: i % 10, Comments: i % 4}
	}
	return docs
}

func testPipelineConfig() config.PipelineConfig {
	return config.PipelineConfig{}.Normalize()
}

type fixture struct {
	gen      *stubGen
	searcher *stubSearcher
	answers  interact.AnswerSource
	orch     *Orchestrator
}

func newFixture(answers interact.AnswerSource, cfg config.PipelineConfig) *fixture {
	f := &fixture{gen: newStubGen(), searcher: &stubSearcher{docs: makeDocs(12)}, answers: answers}
	orch, err := NewDefaultOrchestrator(Deps{Generator: f.gen, Searcher: f.searcher, Window: forum.WindowYear, Config: cfg}, answers)
	if err != nil {
		panic(err)
	}
	f.orch = orch
	return f
}

func batchIndex(prompt string) int {
	i := strings.Index(prompt, "(batch ")
	if i < 0 {
		return -1
	}
	var n int
	fmt.Sscanf(prompt[i:], "(batch %d,", &n)
	return n - 1
}
