package registry

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/garyjia/pm-approval/internal/application/apperr"
	"github.com/garyjia/pm-approval/internal/domain/entity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type nopLogger struct{}

func (nopLogger) Info(string, ...interface{})  {}
func (nopLogger) Error(string, ...interface{}) {}

// memRepo is an in-memory TemplateRepository
type memRepo struct {
	templates []*entity.Template
	nextID    int64
	createErr error
}

func (m *memRepo) Create(ctx context.Context, tpl *entity.Template) error {
	if m.createErr != nil {
		return m.createErr
	}
	m.nextID++
	tpl.ID = m.nextID
	cp := *tpl
	cp.Steps = append([]entity.StepDefinition(nil), tpl.Steps...)
	m.templates = append(m.templates, &cp)
	return nil
}

func (m *memRepo) GetByID(ctx context.Context, id int64) (*entity.Template, error) {
	for _, t := range m.templates {
		if t.ID == id {
			cp := *t
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *memRepo) GetActiveByEntityType(ctx context.Context, et entity.EntityType) (*entity.Template, error) {
	for _, t := range m.templates {
		if t.EntityType == et && t.IsActive {
			cp := *t
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *memRepo) DeactivateByEntityType(ctx context.Context, et entity.EntityType) error {
	for _, t := range m.templates {
		if t.EntityType == et {
			t.IsActive = false
		}
	}
	return nil
}

func (m *memRepo) MaxVersion(ctx context.Context, code string) (int, error) {
	max := 0
	for _, t := range m.templates {
		if t.TemplateCode == code && t.Version > max {
			max = t.Version
		}
	}
	return max, nil
}

// txManager runs fn directly and counts transactions
type txManager struct {
	calls int
}

func (tm *txManager) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	tm.calls++
	return fn(ctx)
}

func (tm *txManager) AfterCommit(ctx context.Context, fn func(ctx context.Context)) { fn(ctx) }

func acceptanceTemplate() *entity.Template {
	return &entity.Template{
		TemplateCode: "ACCEPTANCE_DEFAULT",
		Name:         "Acceptance approval",
		EntityType:   entity.EntityTypeAcceptanceOrder,
		Steps: []entity.StepDefinition{
			{StepOrder: 3, NodeName: "General manager", ApproverID: 30},
			{StepOrder: 1, NodeName: "Project manager", ApproverID: 10},
			{StepOrder: 2, NodeName: "Quality", ApproverRole: "QA_MANAGER", ConditionExpression: "pass_rate < 100"},
		},
	}
}

func TestGetActiveTemplate_NotFound(t *testing.T) {
	reg := New(&memRepo{}, &txManager{}, nopLogger{})

	_, err := reg.GetActiveTemplate(context.Background(), entity.EntityTypeECN)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestPublish_SortsStepsAndActivates(t *testing.T) {
	repo := &memRepo{}
	reg := New(repo, &txManager{}, nopLogger{})

	tpl, err := reg.Publish(context.Background(), acceptanceTemplate())
	require.NoError(t, err)
	assert.Equal(t, 1, tpl.Version)
	assert.True(t, tpl.IsActive)

	active, err := reg.GetActiveTemplate(context.Background(), entity.EntityTypeAcceptanceOrder)
	require.NoError(t, err)
	require.Len(t, active.Steps, 3)
	assert.Equal(t, []int{1, 2, 3}, []int{active.Steps[0].StepOrder, active.Steps[1].StepOrder, active.Steps[2].StepOrder})
}

func TestPublish_KeepsSingleActiveTemplatePerEntityType(t *testing.T) {
	repo := &memRepo{}
	tm := &txManager{}
	reg := New(repo, tm, nopLogger{})
	ctx := context.Background()

	first, err := reg.Publish(ctx, acceptanceTemplate())
	require.NoError(t, err)

	next := acceptanceTemplate()
	next.Steps = next.Steps[:2]
	second, err := reg.Publish(ctx, next)
	require.NoError(t, err)

	assert.Equal(t, 2, second.Version)
	assert.Equal(t, 2, tm.calls)

	active := 0
	for _, tpl := range repo.templates {
		if tpl.EntityType == entity.EntityTypeAcceptanceOrder && tpl.IsActive {
			active++
			assert.Equal(t, second.ID, tpl.ID)
		}
	}
	assert.Equal(t, 1, active)

	old, err := reg.GetTemplate(ctx, first.ID)
	require.NoError(t, err)
	assert.False(t, old.IsActive)
	assert.Len(t, old.Steps, 3)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*entity.Template)
		kind   error
	}{
		{"missing code", func(tpl *entity.Template) { tpl.TemplateCode = " " }, apperr.ErrValidation},
		{"missing entity type", func(tpl *entity.Template) { tpl.EntityType = "" }, apperr.ErrValidation},
		{"no steps", func(tpl *entity.Template) { tpl.Steps = nil }, apperr.ErrConfiguration},
		{"duplicate order", func(tpl *entity.Template) { tpl.Steps[0].StepOrder = 1 }, apperr.ErrConfiguration},
		{"zero order", func(tpl *entity.Template) { tpl.Steps[0].StepOrder = 0 }, apperr.ErrConfiguration},
		{"both approver kinds", func(tpl *entity.Template) { tpl.Steps[1].ApproverRole = "PM" }, apperr.ErrConfiguration},
		{"no approver", func(tpl *entity.Template) { tpl.Steps[1].ApproverID = 0 }, apperr.ErrConfiguration},
		{"bad condition", func(tpl *entity.Template) { tpl.Steps[2].ConditionExpression = "pass_rate <" }, apperr.ErrExpression},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tpl := acceptanceTemplate()
			tt.mutate(tpl)
			assert.ErrorIs(t, Validate(tpl), tt.kind)
		})
	}

	assert.NoError(t, Validate(acceptanceTemplate()))
}

func TestPublish_InvalidTemplateIsNotStored(t *testing.T) {
	repo := &memRepo{}
	reg := New(repo, &txManager{}, nopLogger{})

	tpl := acceptanceTemplate()
	tpl.Steps[2].ConditionExpression = "pass_rate = 100"

	_, err := reg.Publish(context.Background(), tpl)
	assert.ErrorIs(t, err, apperr.ErrExpression)
	assert.Empty(t, repo.templates)
}

const templatesYAML = `
templates:
  - code: ECN_DEFAULT
    name: ECN approval
    entity_type: ECN
    steps:
      - order: 1
        name: Engineering lead
        approver_role: ENGINEERING_LEAD
      - order: 2
        name: Finance review
        approver_id: 20
        condition: cost_impact > 50000
  - code: QUOTE_DEFAULT
    name: Quote approval
    entity_type: SALES_QUOTE
    steps:
      - order: 1
        name: Sales director
        approver_id: 5
`

func TestParseTemplates(t *testing.T) {
	templates, err := ParseTemplates([]byte(templatesYAML))
	require.NoError(t, err)
	require.Len(t, templates, 2)

	ecn := templates[0]
	assert.Equal(t, "ECN_DEFAULT", ecn.TemplateCode)
	assert.Equal(t, entity.EntityTypeECN, ecn.EntityType)
	require.Len(t, ecn.Steps, 2)
	assert.Equal(t, "ENGINEERING_LEAD", ecn.Steps[0].ApproverRole)
	assert.Equal(t, int64(20), ecn.Steps[1].ApproverID)
	assert.Equal(t, "cost_impact > 50000", ecn.Steps[1].ConditionExpression)
}

func TestParseTemplates_InvalidYAML(t *testing.T) {
	_, err := ParseTemplates([]byte("templates: [unclosed"))
	assert.Error(t, err)
}

func TestLoadFile_IsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "templates.yaml")
	require.NoError(t, os.WriteFile(path, []byte(templatesYAML), 0o644))

	repo := &memRepo{}
	reg := New(repo, &txManager{}, nopLogger{})
	ctx := context.Background()

	n, err := LoadFile(ctx, reg, path)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = LoadFile(ctx, reg, path)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	assert.Len(t, repo.templates, 2)
}

func TestLoadFile_MissingFile(t *testing.T) {
	reg := New(&memRepo{}, &txManager{}, nopLogger{})
	_, err := LoadFile(context.Background(), reg, filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
