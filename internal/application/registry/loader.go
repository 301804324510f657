package registry

import (
	"context"
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/garyjia/pm-approval/internal/application/apperr"
	"github.com/garyjia/pm-approval/internal/domain/entity"
)

// templateFile is the on-disk layout of a template definitions file
type templateFile struct {
	Templates []templateSpec `yaml:"templates"`
}

type templateSpec struct {
	Code       string     `yaml:"code"`
	Name       string     `yaml:"name"`
	EntityType string     `yaml:"entity_type"`
	Steps      []stepSpec `yaml:"steps"`
}

type stepSpec struct {
	Order     int    `yaml:"order"`
	Name      string `yaml:"name"`
	Approver  int64  `yaml:"approver_id"`
	Role      string `yaml:"approver_role"`
	Condition string `yaml:"condition"`
}

// ParseTemplates decodes template definitions from YAML
func ParseTemplates(data []byte) ([]*entity.Template, error) {
	var file templateFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("decode templates: %w", err)
	}

	out := make([]*entity.Template, 0, len(file.Templates))
	for _, ts := range file.Templates {
		tpl := &entity.Template{
			TemplateCode: ts.Code,
			Name:         ts.Name,
			EntityType:   entity.EntityType(ts.EntityType),
		}
		for _, ss := range ts.Steps {
			tpl.Steps = append(tpl.Steps, entity.StepDefinition{
				StepOrder:           ss.Order,
				NodeName:            ss.Name,
				ApproverID:          ss.Approver,
				ApproverRole:        ss.Role,
				ConditionExpression: ss.Condition,
			})
		}
		out = append(out, tpl)
	}
	return out, nil
}

// LoadFile publishes every template in a YAML file. A template identical to
// the one already active for its entity type is skipped, so loading the same
// file on every start does not mint new versions.
func LoadFile(ctx context.Context, reg Registry, path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("read templates file: %w", err)
	}

	templates, err := ParseTemplates(data)
	if err != nil {
		return 0, err
	}

	published := 0
	for _, tpl := range templates {
		if err := Validate(tpl); err != nil {
			return published, fmt.Errorf("template %s: %w", tpl.TemplateCode, err)
		}

		current, err := reg.GetActiveTemplate(ctx, tpl.EntityType)
		switch {
		case err == nil && sameDefinition(current, tpl):
			continue
		case err != nil && !errors.Is(err, apperr.ErrNotFound):
			return published, err
		}

		if _, err := reg.Publish(ctx, tpl); err != nil {
			return published, fmt.Errorf("template %s: %w", tpl.TemplateCode, err)
		}
		published++
	}
	return published, nil
}

func sameDefinition(a, b *entity.Template) bool {
	if a.TemplateCode != b.TemplateCode || a.Name != b.Name || len(a.Steps) != len(b.Steps) {
		return false
	}
	for i := range a.Steps {
		x, y := a.Steps[i], b.Steps[i]
		if x.StepOrder != y.StepOrder ||
			x.NodeName != y.NodeName ||
			x.ApproverID != y.ApproverID ||
			x.ApproverRole != y.ApproverRole ||
			x.ConditionExpression != y.ConditionExpression {
			return false
		}
	}
	return true
}
