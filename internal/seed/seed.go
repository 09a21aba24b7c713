// Package seed fills ai_projects with reproducible demo rows.
package seed

import (
	"context"
	"database/sql"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/askql/askql/internal/migrations"
)

const DefaultCount = 100

var (
	architects = []string{"张三", "李四", "王五", "赵六", "孙七", "周八", "吴九"}
	industries = []string{"科幻", "武侠", "悬疑", "都市", "二次元", "治愈", "惊悚"}
	statuses   = []string{"已交付", "制作中", "策划中", "后期中"}
	tools      = []string{"Stable Diffusion", "Midjourney", "Sora", "Runway", "Pika", "Claude 3.5", "GPT-4o"}
)

var columns = []string{
	"architect_name",
	"project_name",
	"client_industry",
	"tech_stack",
	"episode_count",
	"total_budget",
	"completion_rate",
	"start_date",
	"end_date",
	"status",
	"ai_tools_used",
	"performance_score",
}

type Project struct {
	ArchitectName    string
	ProjectName      string
	ClientIndustry   string
	TechStack        string
	EpisodeCount     int
	TotalBudget      decimal.Decimal
	CompletionRate   int
	StartDate        time.Time
	EndDate          time.Time
	Status           string
	AIToolsUsed      string
	PerformanceScore decimal.Decimal
}

func (p Project) values() []any {
	return []any{
		p.ArchitectName,
		p.ProjectName,
		p.ClientIndustry,
		p.TechStack,
		p.EpisodeCount,
		p.TotalBudget,
		p.CompletionRate,
		p.StartDate.Format(time.DateOnly),
		p.EndDate.Format(time.DateOnly),
		p.Status,
		p.AIToolsUsed,
		p.PerformanceScore,
	}
}

// Fixed are the two hand-written rows that lead every seed.
func Fixed() []Project {
	return []Project{
		{
			ArchitectName:    "张三",
			ProjectName:      "赛博都市：觉醒",
			ClientIndustry:   "科幻",
			TechStack:        "SD + Midjourney",
			EpisodeCount:     12,
			TotalBudget:      decimal.RequireFromString("150000.00"),
			CompletionRate:   100,
			StartDate:        date(2023, time.January, 10),
			EndDate:          date(2023, time.March, 10),
			Status:           "已交付",
			AIToolsUsed:      "Runway Gen-2",
			PerformanceScore: decimal.RequireFromString("9.5"),
		},
		{
			ArchitectName:    "李四",
			ProjectName:      "古风江湖：剑影",
			ClientIndustry:   "武侠",
			TechStack:        "ControlNet + Sora",
			EpisodeCount:     24,
			TotalBudget:      decimal.RequireFromString("300000.00"),
			CompletionRate:   80,
			StartDate:        date(2023, time.April, 15),
			EndDate:          date(2023, time.August, 15),
			Status:           "制作中",
			AIToolsUsed:      "Pika Labs",
			PerformanceScore: decimal.RequireFromString("8.8"),
		},
	}
}

type Generator struct {
	rnd *rand.Rand
	seq int
}

func NewGenerator(seed int64) *Generator {
	return &Generator{rnd: rand.New(rand.NewSource(seed))}
}

func (g *Generator) Next() Project {
	g.seq++
	start := date(2023, time.January, 1).AddDate(0, 0, g.rnd.Intn(366))
	return Project{
		ArchitectName:    pickOne(g.rnd, architects),
		ProjectName:      fmt.Sprintf("AI短漫剧项目_%d", g.seq),
		ClientIndustry:   pickOne(g.rnd, industries),
		TechStack:        strings.Join(sample(g.rnd, tools, 2), " + "),
		EpisodeCount:     5 + g.rnd.Intn(46),
		TotalBudget:      decimal.NewFromFloat(50000 + g.rnd.Float64()*450000).Round(2),
		CompletionRate:   g.rnd.Intn(101),
		StartDate:        start,
		EndDate:          start.AddDate(0, 0, 30+g.rnd.Intn(151)),
		Status:           pickOne(g.rnd, statuses),
		AIToolsUsed:      strings.Join(sample(g.rnd, tools, 3), ", "),
		PerformanceScore: decimal.NewFromFloat(5 + g.rnd.Float64()*5).Round(1),
	}
}

// Projects returns the fixed rows followed by n generated ones.
func Projects(seed int64, n int) []Project {
	projects := Fixed()
	g := NewGenerator(seed)
	for i := 0; i < n; i++ {
		projects = append(projects, g.Next())
	}
	return projects
}

// Insert writes projects in multi-row batches inside one transaction and
// returns the number of rows inserted.
func Insert(ctx context.Context, db *sql.DB, dialect migrations.Dialect, projects []Project, batchSize int) (int, error) {
	if batchSize <= 0 {
		batchSize = 50
	}
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	inserted := 0
	for start := 0; start < len(projects); start += batchSize {
		end := min(start+batchSize, len(projects))
		batch := projects[start:end]
		query, args := insertStatement(dialect, batch)
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return 0, fmt.Errorf("insert projects %d-%d: %w", start, end-1, err)
		}
		inserted += len(batch)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit seed: %w", err)
	}
	return inserted, nil
}

// Reset deletes every row from ai_projects.
func Reset(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, `DELETE FROM ai_projects`); err != nil {
		return fmt.Errorf("reset ai_projects: %w", err)
	}
	return nil
}

func insertStatement(dialect migrations.Dialect, batch []Project) (string, []any) {
	var b strings.Builder
	b.WriteString("INSERT INTO ai_projects (")
	b.WriteString(strings.Join(columns, ", "))
	b.WriteString(") VALUES ")

	args := make([]any, 0, len(batch)*len(columns))
	position := 1
	for i, project := range batch {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteByte('(')
		for j := range columns {
			if j > 0 {
				b.WriteString(", ")
			}
			b.WriteString(dialect.Placeholder(position))
			position++
		}
		b.WriteByte(')')
		args = append(args, project.values()...)
	}
	return b.String(), args
}

func date(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

func pickOne(r *rand.Rand, values []string) string {
	return values[r.Intn(len(values))]
}

func sample(r *rand.Rand, values []string, k int) []string {
	picked := make([]string, 0, k)
	for _, i := range r.Perm(len(values))[:k] {
		picked = append(picked, values[i])
	}
	return picked
}
