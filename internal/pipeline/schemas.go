package pipeline

import "github.com/mohammad-safakhou/ideascope/internal/schema"

// Clarification categories, in the order the fallback question walks them.
var clarificationCategories = []string{
	"problem", "target_users", "solution", "market", "monetization", "competition", "feasibility",
}

var ideaSchema = &schema.Schema{
	Name:        "clarified_idea",
	Description: "Structured restatement of the proposal",
	Fields: []schema.Field{
		{Name: "title", Type: schema.String, Required: true, Aliases: []string{"name", "idea"}},
		{Name: "problem", Type: schema.String, Required: true, Aliases: []string{"problem_statement"}},
		{Name: "target_users", Type: schema.String, Required: true, Aliases: []string{"audience", "target_audience", "customers"}},
		{Name: "solution", Type: schema.String, Required: true},
		{Name: "value_proposition", Type: schema.String, Required: true, Aliases: []string{"value", "uvp"}},
		{Name: "business_model", Type: schema.String, Aliases: []string{"monetization", "revenue_model"}},
		{Name: "keywords", Type: schema.StringList, Required: true, Description: "search keywords, at most 5"},
		{Name: "scopes", Type: schema.StringList, Description: "forum communities to search, at most 5", Aliases: []string{"subreddits", "communities"}},
		{Name: "assumptions", Type: schema.StringList},
	},
}

var clarifierSchema = &schema.Schema{
	Name:        "clarification",
	Description: "Clarifier verdict, refined idea and the next question",
	Fields: []schema.Field{
		{Name: "status", Type: schema.Enum, Required: true, Values: []string{"complete", "needs_clarification"}, Default: "needs_clarification"},
		{Name: "clarified_idea", Type: schema.Object, Required: true, Schema: ideaSchema, Aliases: []string{"idea"}},
		{Name: "next_question", Type: schema.Object, Schema: &schema.Schema{
			Name: "next_question",
			Fields: []schema.Field{
				{Name: "question", Type: schema.String, Required: true},
				{Name: "rationale", Type: schema.String, Aliases: []string{"reason", "why"}},
				{Name: "category", Type: schema.Enum, Required: true,
					Values:  append(append([]string(nil), clarificationCategories...), "other"),
					Default: "other"},
			},
		}, Aliases: []string{"question"}},
	},
}

var suggestionSchema = &schema.Schema{
	Name:        "suggestions",
	Description: "Candidate answers for one pending question",
	Fields: []schema.Field{
		{Name: "suggestions", Type: schema.ObjectList, Required: true, Aliases: []string{"options", "answers"}, Schema: &schema.Schema{
			Name: "suggestion",
			Fields: []schema.Field{
				{Name: "text", Type: schema.String, Required: true, Aliases: []string{"answer", "option"}},
				{Name: "rationale", Type: schema.String},
				{Name: "tier", Type: schema.Enum, Required: true, Values: []string{"conservative", "balanced", "ambitious"}, Aliases: []string{"risk", "level"}},
			},
		}},
	},
}

var variationsSchema = &schema.Schema{
	Name:        "variations",
	Description: "Alternative framings of the idea",
	Fields: []schema.Field{
		{Name: "variations", Type: schema.ObjectList, Required: true, Aliases: []string{"ideas", "alternatives"}, Schema: &schema.Schema{
			Name: "variation",
			Fields: []schema.Field{
				{Name: "title", Type: schema.String, Required: true},
				{Name: "description", Type: schema.String, Required: true},
				{Name: "target_segment", Type: schema.String, Aliases: []string{"segment", "audience"}},
				{Name: "differentiator", Type: schema.String, Aliases: []string{"edge", "unique_angle"}},
			},
		}},
	},
}

var critiqueSchema = &schema.Schema{
	Name:        "critique",
	Description: "Critical review of the idea",
	Fields: []schema.Field{
		{Name: "summary", Type: schema.String, Required: true},
		{Name: "strengths", Type: schema.StringList, Required: true},
		{Name: "weaknesses", Type: schema.StringList, Required: true},
		{Name: "risks", Type: schema.StringList, Required: true},
		{Name: "competitors", Type: schema.StringList},
		{Name: "verdict", Type: schema.Enum, Required: true, Values: []string{"weak", "moderate", "strong"}},
		{Name: "score", Type: schema.Number, Required: true, Bounded: true, Min: 0, Max: 10},
	},
}

var questionsSchema = &schema.Schema{
	Name:        "validation_questions",
	Description: "Questions whose answers validate or invalidate the idea",
	Fields: []schema.Field{
		{Name: "questions", Type: schema.ObjectList, Required: true, Schema: &schema.Schema{
			Name: "validation_question",
			Fields: []schema.Field{
				{Name: "question", Type: schema.String, Required: true},
				{Name: "purpose", Type: schema.String, Aliases: []string{"why", "rationale"}},
				{Name: "category", Type: schema.Enum, Required: true,
					Values: []string{"problem", "market", "solution", "feasibility", "monetization", "other"}, Default: "other"},
			},
		}},
	},
}

func scoreField(name string) schema.Field {
	return schema.Field{Name: name, Type: schema.Integer, Required: true, Bounded: true, Min: 1, Max: 10}
}

var validationSchema = &schema.Schema{
	Name:        "validation",
	Description: "Scored validation with a roadmap",
	Fields: []schema.Field{
		{Name: "scores", Type: schema.Object, Required: true, Schema: &schema.Schema{
			Name: "scores",
			Fields: []schema.Field{
				scoreField("problem"), scoreField("market"), scoreField("solution"),
				scoreField("feasibility"), scoreField("monetization"),
			},
		}},
		{Name: "overall", Type: schema.Number, Required: true, Bounded: true, Min: 1, Max: 10, Aliases: []string{"overall_score"}},
		{Name: "recommendation", Type: schema.Enum, Required: true, Values: []string{"pivot", "refine", "proceed"}},
		{Name: "summary", Type: schema.String, Required: true},
		{Name: "roadmap", Type: schema.ObjectList, Required: true, Aliases: []string{"next_steps", "plan"}, Schema: &schema.Schema{
			Name: "roadmap_step",
			Fields: []schema.Field{
				{Name: "phase", Type: schema.String, Required: true, Aliases: []string{"name", "step"}},
				{Name: "goal", Type: schema.String, Required: true},
				{Name: "duration", Type: schema.String, Aliases: []string{"timeline"}},
				{Name: "milestones", Type: schema.StringList},
			},
		}},
	},
}

var findingsSchema = &schema.Schema{
	Name:        "findings",
	Description: "Demand signals found in one batch of forum posts",
	Fields: []schema.Field{
		{Name: "mentions", Type: schema.Integer, Required: true, Bounded: true, Min: 0, Max: 1e6, Default: 0,
			Description: "posts that mention the problem or a close substitute"},
		{Name: "positive", Type: schema.Integer, Bounded: true, Min: 0, Max: 1e6, Default: 0},
		{Name: "negative", Type: schema.Integer, Bounded: true, Min: 0, Max: 1e6, Default: 0},
		{Name: "pain_points", Type: schema.Integer, Bounded: true, Min: 0, Max: 1e6, Default: 0},
		{Name: "demand_rate", Type: schema.Number, Required: true, Bounded: true, Min: 0, Max: 1,
			Description: "share of posts expressing demand"},
		{Name: "sentiment", Type: schema.Number, Bounded: true, Min: -1, Max: 1, Default: 0},
		{Name: "intensity", Type: schema.Number, Bounded: true, Min: 0, Max: 1},
		{Name: "complaints", Type: schema.StringList, Required: true},
		{Name: "themes", Type: schema.StringList, Required: true},
		{Name: "opportunities", Type: schema.StringList},
	},
}

var realityCheckSchema = &schema.Schema{
	Name:        "reality_check",
	Description: "Verdict on whether forum evidence supports the idea",
	Fields: []schema.Field{
		{Name: "verdict", Type: schema.Enum, Required: true,
			Values: []string{"validated", "mixed", "unvalidated", "insufficient_data"}, Default: "insufficient_data"},
		{Name: "reality_check", Type: schema.String, Required: true, Aliases: []string{"summary", "analysis"}},
		{Name: "evidence", Type: schema.StringList},
	},
}
