package registry

import (
	"encoding/json"
	"fmt"

	"github.com/sparkq/sparkq/internal/queue/models"
)

// Namespaces and keys of the entries the registry knows how to resolve.
// Arbitrary additional entries are accepted and stored verbatim.
const (
	NamespacePurge       = "purge"
	NamespaceQueueRunner = "queue_runner"
	NamespaceTools       = "tools"
	NamespaceTaskClasses = "task_classes"
	NamespaceFeatures    = "features"
	NamespaceDefaults    = "defaults"
	NamespaceUI          = "ui"

	KeyConfig  = "config"
	KeyAll     = "all"
	KeyFlags   = "flags"
	KeyQueue   = "queue"
	KeyBuildID = "build_id"
)

// FallbackTimeoutSeconds applies when a task names no timeout and no layer
// knows its task class.
const FallbackTimeoutSeconds = 300

// WatcherRowTimeoutSeconds applies when the watcher meets a running row
// whose stored timeout is unusable.
const WatcherRowTimeoutSeconds = 3600

// BuiltinClassTimeout returns the compiled default timeout for a class
// name. Callers fall back to it when no configuration layer defines the
// class anymore but the name is still a recognized builtin.
func BuiltinClassTimeout(name string) (int, bool) {
	spec, ok := builtinTaskClasses()[name]
	return spec.Timeout, ok
}

func builtinPurge() PurgeSettings {
	return PurgeSettings{Enabled: true, OlderThanDays: 3, IntervalSeconds: 3600}
}

func builtinQueueRunner() QueueRunnerSettings {
	return QueueRunnerSettings{AutoFailIntervalSeconds: 30}
}

func builtinQueueDefaults() QueueDefaultSettings {
	return QueueDefaultSettings{Instructions: ""}
}

func builtinBuildID() buildIDDoc {
	return buildIDDoc{BuildID: "dev"}
}

func builtinTaskClasses() map[string]classSpec {
	return map[string]classSpec{
		"FAST_SCRIPT":   {Timeout: 120, Description: "Quick scripts, linters, formatters"},
		"MEDIUM_SCRIPT": {Timeout: 600, Description: "Builds, test suites, longer scripts"},
		"LLM_LITE":      {Timeout: 480, Description: "Single-prompt LLM calls"},
		"LLM_HEAVY":     {Timeout: 1200, Description: "Agentic or multi-step LLM work"},
	}
}

func builtinTools() map[string]toolSpec {
	return map[string]toolSpec{
		"run-bash":   {TaskClass: "MEDIUM_SCRIPT", Description: "Run a shell command"},
		"run-script": {TaskClass: "MEDIUM_SCRIPT", Description: "Run a registered script"},
		"run-python": {TaskClass: "FAST_SCRIPT", Description: "Run a Python snippet"},
		"ask-llm":    {TaskClass: "LLM_LITE", Description: "One-shot LLM prompt"},
		"agent-task": {TaskClass: "LLM_HEAVY", Description: "Long-running agent task"},
	}
}

// builtinPrompts is the starter prompt catalog installed on first run.
func builtinPrompts() []*models.Prompt {
	return []*models.Prompt{
		{
			Name:        "triage",
			Description: "Classify and size an incoming issue",
			Content:     "Read the issue below and reply with a one-line classification (bug/feature/question), an affected area, and a rough size (S/M/L).\n\n{{issue}}",
		},
		{
			Name:        "code-review",
			Description: "Review a diff for correctness and style",
			Content:     "Review the following diff. Point out correctness problems first, then style. Be specific about file and line.\n\n{{diff}}",
		},
		{
			Name:        "summarize-run",
			Description: "Summarize a task run for the queue log",
			Content:     "Summarize the following task output in at most three sentences, leading with whether it succeeded.\n\n{{output}}",
		},
	}
}

// builtinEntries renders the compiled defaults as config documents, one per
// known (namespace, key) pair.
func builtinEntries() map[string]map[string]string {
	return map[string]map[string]string{
		NamespacePurge:       {KeyConfig: mustJSON(builtinPurge())},
		NamespaceQueueRunner: {KeyConfig: mustJSON(builtinQueueRunner())},
		NamespaceTools:       {KeyAll: mustJSON(builtinTools())},
		NamespaceTaskClasses: {KeyAll: mustJSON(builtinTaskClasses())},
		NamespaceFeatures:    {KeyFlags: mustJSON(map[string]bool{})},
		NamespaceDefaults:    {KeyQueue: mustJSON(builtinQueueDefaults())},
		NamespaceUI:          {KeyBuildID: mustJSON(builtinBuildID())},
	}
}

func mustJSON(v interface{}) string {
	data, err := json.Marshal(v)
	if err != nil {
		panic(fmt.Sprintf("registry: cannot marshal builtin: %v", err))
	}
	return string(data)
}
