package ml

import (
	"fmt"
)

const (
	ModelTypeDecisionTree = "decision_tree"
	ModelTypeLinear       = "linear"
)

func LoadModel(modelType, path string) (Classifier, error) {
	switch modelType {
	case ModelTypeDecisionTree, "":
		model := &DecisionTree{}
		if err := model.Load(path); err != nil {
			return nil, err
		}
		return model, nil
	case ModelTypeLinear:
		model := &LinearModel{}
		if err := model.Load(path); err != nil {
			return nil, err
		}
		return model, nil
	default:
		return nil, fmt.Errorf("unsupported model type %q", modelType)
	}
}
