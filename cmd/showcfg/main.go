package main

import (
	"fmt"
	"os"

	"flowstate/internal/config"
	"flowstate/internal/format"
	"flowstate/internal/hook"
)

func main() {
	path := ""
	if len(os.Args) > 1 {
		path = os.Args[1]
	}
	cfg, err := config.Load(path)
	if err != nil {
		panic(err)
	}
	fmt.Printf("config=%s\n", cfg.Paths.ConfigPath)
	fmt.Printf("asr=%s model=%s remote=%s\n", cfg.ASR.Backend, cfg.ASR.ModelPath, cfg.ASR.RemoteModel)
	fmt.Printf("segmenter detector=%s min=%.1fs max=%.1fs silence=%.3f\n",
		cfg.Segmenter.Detector, cfg.Segmenter.MinChunkSec, cfg.Segmenter.MaxChunkSec, cfg.Segmenter.SilenceThreshold)
	fmt.Printf("output=%s formatter.llm=%v categories=%v\n", cfg.Output.Mode, cfg.Formatter.APIKey != "", cfg.Formatter.LLMCategories)
	fmt.Printf("hooks=%d hook.command=%q\n", len(cfg.Hooks), cfg.Hook.Command)
	for i, h := range cfg.Hooks {
		fmt.Printf("hook %d apps=%v categories=%v cmd=%s args=%v\n", i, h.Apps, h.Categories, h.Command, h.Args)
	}
	for _, p := range format.NewProfiles(cfg).List() {
		sel := "-"
		if hk := hook.SelectHookConfig(cfg, p.Name, string(p.Category)); hk != nil {
			sel = hk.Command
		}
		fmt.Printf("profile %-28s %-8s hook=%s\n", p.Name, p.Category, sel)
	}
}
