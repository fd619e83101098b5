package engine

import "github.com/shaiso/tableflow/internal/domain"

// Signature — внешний контракт Flow или Subflow:
// упорядоченные ID входных и выходных переменных.
type Signature struct {
	ID      string   `json:"id"`
	Main    string   `json:"main"`
	Inputs  []string `json:"inputs"`
	Outputs []string `json:"outputs"`
}

// Registry — источник Flow и Template для вычислений.
type Registry interface {
	Flow(id string) (*domain.Flow, bool)
	Template(id string) (*domain.Template, bool)

	// FlowWorkflow возвращает ID workflow, которому принадлежит flow.
	FlowWorkflow(flowID string) string
}

// DeriveFlowSignature выводит сигнатуру flow из реестра.
// Второе значение false, если flow не найден или сигнатура не выводится.
func DeriveFlowSignature(reg Registry, flowID string) (Signature, bool) {
	if reg == nil || flowID == "" {
		return Signature{}, false
	}
	flow, ok := reg.Flow(flowID)
	if !ok {
		return Signature{}, false
	}
	return DeriveFlowSignatureOf(flow)
}

// DeriveFlowSignatureOf выводит сигнатуру по главному Subflow.
func DeriveFlowSignatureOf(flow *domain.Flow) (Signature, bool) {
	main, ok := flow.MainSubflow()
	if !ok {
		return Signature{}, false
	}
	sig, ok := DeriveSubflowSignature(main)
	if !ok {
		return Signature{}, false
	}
	sig.ID = flow.ID
	sig.Main = flow.Main
	return sig, true
}

// DeriveSubflowSignature выводит сигнатуру Subflow по его элементам
// input и output. Списки входов и выходов должны быть непустыми.
func DeriveSubflowSignature(sf *domain.Subflow) (Signature, bool) {
	if sf == nil {
		return Signature{}, false
	}

	inEl, ok := sf.Element(sf.Input)
	if !ok {
		return Signature{}, false
	}
	in, ok := inEl.Value.(*domain.InputValue)
	if !ok || in == nil || len(in.Inputs) == 0 {
		return Signature{}, false
	}

	outEl, ok := sf.Element(sf.Output)
	if !ok {
		return Signature{}, false
	}
	out, ok := outEl.Value.(*domain.OutputValue)
	if !ok || out == nil || len(out.Outputs) == 0 {
		return Signature{}, false
	}

	return Signature{
		ID:      sf.ID,
		Main:    sf.ID,
		Inputs:  append([]string(nil), in.Inputs...),
		Outputs: append([]string(nil), out.Outputs...),
	}, true
}
