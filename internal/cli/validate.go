package cli

import (
	"errors"
	"fmt"

	"github.com/hashicorp/go-multierror"
	"github.com/spf13/cobra"

	"github.com/shaiso/tableflow/internal/domain"
	"github.com/shaiso/tableflow/internal/engine"
	"github.com/shaiso/tableflow/internal/registry"
)

// ErrInvalidDocument — документ не прошёл проверку.
var ErrInvalidDocument = errors.New("document has problems")

// ValidationReport — результат проверки flow.
type ValidationReport struct {
	FlowID   string   `json:"flow_id"`
	Problems []string `json:"problems,omitempty"`
}

// NewValidateCmd создаёт команду локальной проверки документа.
// API не требуется.
func NewValidateCmd(outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "validate FILE",
		Short: "Validate a JSON or YAML document offline",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := outputFn()

			doc, err := domain.LoadDocumentFile(args[0])
			if err != nil {
				return fmt.Errorf("failed to read document: %w", err)
			}

			reports, err := ValidateDocument(doc)
			if err != nil {
				return err
			}

			if bad := out.Reports(reports); bad > 0 {
				return fmt.Errorf("%w: %d of %d flows", ErrInvalidDocument, bad, len(reports))
			}
			return nil
		},
	}
}

// ValidateDocument строит реестр из документа и проверяет каждый flow
// структурно и по lock-записям. Ошибка — только если реестр не строится.
// Проблемы lock-записей workflows и шаблонов попадают в отчёт с пустым FlowID.
func ValidateDocument(doc *domain.Document) ([]ValidationReport, error) {
	reg, err := registry.New(doc)
	if err != nil {
		return nil, err
	}

	var general []string
	if err := reg.CheckLocks(); err != nil {
		for _, e := range flatten(err) {
			general = append(general, e.Error())
		}
	}

	reports := make([]ValidationReport, 0, len(reg.FlowIDs()))
	for _, id := range reg.FlowIDs() {
		f, _ := reg.Flow(id)
		r := ValidationReport{FlowID: id}
		for _, e := range flatten(engine.Validate(reg, f)) {
			r.Problems = append(r.Problems, e.Error())
		}
		reports = append(reports, r)
	}

	if len(general) > 0 {
		reports = append(reports, ValidationReport{Problems: general})
	}
	return reports, nil
}

func flatten(err error) []error {
	if err == nil {
		return nil
	}
	var merr *multierror.Error
	if errors.As(err, &merr) {
		return merr.Errors
	}
	return []error{err}
}
