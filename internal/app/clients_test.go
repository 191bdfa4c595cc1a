package app

import (
	"context"
	"errors"
	"testing"

	"github.com/andychuong/ai-study-companion-sub000/internal/platform/llm"
	"github.com/andychuong/ai-study-companion-sub000/internal/platform/logger"
	"github.com/andychuong/ai-study-companion-sub000/internal/platform/openai"
)

func TestResolveLLMWithoutKeyIsNotConfigured(t *testing.T) {
	gw, err := resolveLLM(context.Background(), logger.Nop(), LLMConfig{})
	if err != nil {
		t.Fatalf("resolveLLM: %v", err)
	}
	if llm.IsConfigured(gw) {
		t.Fatalf("expected an unconfigured gateway, got %T", gw)
	}
	if _, err := gw.GenerateText(context.Background(), "s", "u"); !errors.Is(err, llm.ErrNotConfigured) {
		t.Fatalf("want ErrNotConfigured, got %v", err)
	}
}

func TestResolveLLMWithSecondaryModel(t *testing.T) {
	gw, err := resolveLLM(context.Background(), logger.Nop(), LLMConfig{
		Primary:        openai.Config{APIKey: "sk-test", Model: "gpt-4o"},
		SecondaryModel: "gpt-4o-mini",
		RPS:            2,
		Burst:          1,
	})
	if err != nil {
		t.Fatalf("resolveLLM: %v", err)
	}
	if !llm.IsConfigured(gw) {
		t.Fatalf("expected a configured gateway")
	}
	if gw.Model() != "gpt-4o" {
		t.Fatalf("model: want=gpt-4o got=%q", gw.Model())
	}
}
