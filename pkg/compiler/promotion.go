package compiler

import (
	"fmt"

	"github.com/chinmayajena/sundaygraph/pkg/apperrors"
	"github.com/chinmayajena/sundaygraph/pkg/odl"
)

// Environment is one promotion target. The shared semantic definition
// sits at the bundle root; each environment gets its own scripts with
// database, schema and view name substituted.
type Environment struct {
	Name     string `json:"name"`
	Database string `json:"database"`
	Schema   string `json:"schema"`
	ViewName string `json:"view_name"`
}

// CompilePromotion builds a multi-environment bundle. Environments are
// processed in the given order, which fixes the output bytes.
func CompilePromotion(ir *odl.IR, opts Options, environments []Environment) (*Bundle, error) {
	if len(environments) == 0 {
		return nil, apperrors.New(apperrors.CodeCompileFailed, "promotion bundle needs at least one environment")
	}

	if opts.ModelName == "" {
		opts.ModelName = ir.Name
		if opts.ModelName == "" {
			opts.ModelName = "semantic_model"
		}
	}

	bundle := &Bundle{}
	envNames := make([]string, 0, len(environments))

	for i, env := range environments {
		if env.Name == "" {
			return nil, apperrors.Newf(apperrors.CodeCompileFailed, "environment %d has no name", i)
		}
		if env.Database == "" || env.Schema == "" {
			return nil, apperrors.Newf(apperrors.CodeCompileFailed,
				"environment %q needs database and schema", env.Name)
		}
		viewName := env.ViewName
		if viewName == "" {
			viewName = env.Name + "_semantic_view"
		}
		envNames = append(envNames, env.Name)

		doc := buildSemanticModel(ir, opts.ModelName, env.Database, env.Schema)
		envYAML, err := renderSemanticModelYAML(doc, opts)
		if err != nil {
			return nil, apperrors.Wrap(apperrors.CodeCompileFailed,
				fmt.Sprintf("semantic model emission failed for %s", env.Name), err)
		}

		if i == 0 {
			// The shared definition at the bundle root uses the first
			// environment's physical locations as the reference copy.
			bundle.SetFile("semantic_model.yaml", envYAML)
		}

		viewFQN := fmt.Sprintf("%s.%s.%s", env.Database, env.Schema, viewName)
		bundle.SetFile(env.Name+"/verify.sql", VerifySQL(env.Database, env.Schema, envYAML))
		bundle.SetFile(env.Name+"/deploy.sql", DeploySQL(env.Database, env.Schema, viewName, envYAML))
		bundle.SetFile(env.Name+"/rollback.sql", RollbackSQL(env.Database, env.Schema, viewName, ""))
		bundle.SetFile(env.Name+"/export.sql", ExportSQL(viewFQN))
	}

	bundle.SetFile("instructions.md", promotionInstructionsMD(environments))
	bundle.SetFile("rollback.md", promotionRollbackMD(environments))

	writeMetadata(bundle, ir, opts, envNames)
	return bundle, nil
}

func promotionInstructionsMD(environments []Environment) string {
	md := "# Promotion Bundle\n\nDeploy environments in order; validate each before promoting to the next.\n\n"
	for _, env := range environments {
		viewName := env.ViewName
		if viewName == "" {
			viewName = env.Name + "_semantic_view"
		}
		md += fmt.Sprintf("## %s\n\n- Target: %s.%s.%s\n- Run %s/verify.sql, then %s/deploy.sql\n\n",
			env.Name, env.Database, env.Schema, viewName, env.Name, env.Name)
	}
	return md
}

func promotionRollbackMD(environments []Environment) string {
	md := "# Rollback\n\nEach environment rolls back independently.\n\n"
	for _, env := range environments {
		md += fmt.Sprintf("- %s: run %s/rollback.sql (capture the live YAML with %s/export.sql first if it must be restored later)\n",
			env.Name, env.Name, env.Name)
	}
	return md
}
