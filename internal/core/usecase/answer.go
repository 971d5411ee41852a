package usecase

import (
	"context"
	"fmt"

	"github.com/kirillkom/polis-rag/internal/core/domain"
	"github.com/kirillkom/polis-rag/internal/core/ports"
)

const noContextAnswer = "Er zijn geen relevante passages gevonden in de polisdocumenten."

type AnswerUseCase struct {
	retriever ports.PassageRetriever
	generator ports.AnswerGenerator
}

func NewAnswerUseCase(retriever ports.PassageRetriever, generator ports.AnswerGenerator) *AnswerUseCase {
	return &AnswerUseCase{
		retriever: retriever,
		generator: generator,
	}
}

// Answer retrieves passages and hands them to the generator. Without passages the generator is
// not called.
func (uc *AnswerUseCase) Answer(ctx context.Context, req domain.RetrievalRequest) (*domain.Answer, error) {
	retrieved, err := uc.retriever.Retrieve(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("retrieve passages: %w", err)
	}
	if len(retrieved.Results) == 0 {
		return &domain.Answer{
			Text:    noContextAnswer,
			Sources: []domain.RankedPassage{},
			Stats:   retrieved.PipelineStats,
		}, nil
	}

	text, err := uc.generator.GenerateAnswer(ctx, req.Query, retrieved.Results)
	if err != nil {
		return nil, fmt.Errorf("generate answer: %w", err)
	}
	return &domain.Answer{
		Text:    text,
		Sources: retrieved.Results,
		Stats:   retrieved.PipelineStats,
	}, nil
}
