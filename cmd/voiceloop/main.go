// voiceloop answers calls with a local model: caller speech is
// recognized, a short-memory conversation produces the reply, and the
// reply is spoken back. Run it plain for the browser call page or with
// --phone to terminate Twilio media streams.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/voiceloop/voiceloop/internal/log"
	"github.com/voiceloop/voiceloop/pkg/agent"
	"github.com/voiceloop/voiceloop/pkg/config"
	"github.com/voiceloop/voiceloop/pkg/convo"
	"github.com/voiceloop/voiceloop/pkg/inference"
	"github.com/voiceloop/voiceloop/pkg/phone"
	"github.com/voiceloop/voiceloop/pkg/rtc"
	"github.com/voiceloop/voiceloop/pkg/stt"
	"github.com/voiceloop/voiceloop/pkg/tts"
	"github.com/voiceloop/voiceloop/pkg/web"
)

func main() {
	var (
		model       = flag.String("model", config.DefaultModel, "Ollama model to converse with")
		configPath  = flag.String("config", "", "Path to YAML config file")
		promptPath  = flag.String("system-prompt", "", "Path to a system prompt text file")
		maxTokens   = flag.Int("max-tokens", config.DefaultMaxTokens, "Response token cap")
		temperature = flag.Float64("temperature", config.DefaultTemperature, "Sampling temperature (0-2)")
		topP        = flag.Float64("top-p", config.DefaultTopP, "Nucleus sampling cutoff (0-1)")
		memoryTurns = flag.Int("memory-turns", config.DefaultMemoryTurns, "Conversation turns kept in memory")
		addr        = flag.String("addr", config.DefaultAddr, "Web listen address")
		share       = flag.Bool("share", false, "Listen on all interfaces instead of loopback")
		phoneMode   = flag.Bool("phone", false, "Answer Twilio phone calls instead of serving the call page")
		publicHost  = flag.String("public-host", "", "Externally reachable host for Twilio media sockets")
		llmURL      = flag.String("llm-url", config.DefaultLLMURL, "Ollama base URL")
		sttURL      = flag.String("stt-url", config.DefaultSTTURL, "Speech recognition base URL (OpenAI-compatible)")
		ttsURL      = flag.String("tts-url", config.DefaultTTSURL, "Speech synthesis base URL (OpenAI-compatible)")
		logLevel    = flag.String("log-level", config.DefaultLogLevel, "Log level: debug, info, warn, error")
	)
	flag.Parse()

	log.Init(*logLevel)

	settings := config.Load(*configPath, log.L())

	// Flags override file values only when the user actually passed
	// them; a flag left at its default never clobbers the file.
	set := map[string]bool{}
	flag.Visit(func(f *flag.Flag) { set[f.Name] = true })

	if set["model"] {
		settings.Model = *model
	}
	if set["max-tokens"] {
		settings.MaxTokens = *maxTokens
	}
	if set["temperature"] {
		settings.Temperature = *temperature
	}
	if set["top-p"] {
		settings.TopP = *topP
	}
	if set["memory-turns"] {
		settings.MemoryTurns = *memoryTurns
	}
	if set["addr"] {
		settings.Addr = *addr
	}
	if set["llm-url"] {
		settings.LLMURL = *llmURL
	}
	if set["stt-url"] {
		settings.STTURL = *sttURL
	}
	if set["tts-url"] {
		settings.TTSURL = *ttsURL
	}
	if set["log-level"] {
		settings.LogLevel = *logLevel
	}
	settings.Share = *share
	settings.Phone = *phoneMode
	if set["system-prompt"] {
		settings.ApplyPromptFile(*promptPath, log.L())
	}

	if err := settings.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "voiceloop: %v\n", err)
		os.Exit(1)
	}

	log.Init(settings.LogLevel)

	if settings.Share && !set["addr"] {
		settings.Addr = "0.0.0.0:7860"
	}

	backend, err := inference.NewOllama(
		inference.WithBaseURL(settings.LLMURL),
		inference.WithModel(settings.Model),
		inference.WithMaxTokens(settings.MaxTokens),
		inference.WithTemperature(settings.Temperature),
		inference.WithTopP(settings.TopP),
		inference.WithLogger(log.L()),
	)
	if err != nil {
		fmt.Fprintf(os.Stderr, "voiceloop: %v\n", err)
		os.Exit(1)
	}
	defer backend.Close()

	transcriber, err := stt.NewWhisper(
		stt.WithBaseURL(settings.STTURL),
		stt.WithLogger(log.L()),
	)
	if err != nil {
		fmt.Fprintf(os.Stderr, "voiceloop: %v\n", err)
		os.Exit(1)
	}
	defer transcriber.Close()

	speech, err := tts.NewKokoro(
		tts.WithBaseURL(settings.TTSURL),
		tts.WithLogger(log.L()),
	)
	if err != nil {
		fmt.Fprintf(os.Stderr, "voiceloop: %v\n", err)
		os.Exit(1)
	}
	defer speech.Close()

	checkHealth(backend, transcriber, speech)

	log.Info("starting",
		"model", settings.Model,
		"memory_turns", settings.MemoryTurns,
		"phone", settings.Phone,
	)

	newSession := func(events agent.Events) *agent.Session {
		memory := convo.NewMemory(settings.MemoryTurns)
		processor := convo.NewProcessor(backend, memory,
			convo.WithSystemPrompt(settings.SystemPrompt),
			convo.WithModel(settings.Model),
			convo.WithMaxTokens(settings.MaxTokens),
			convo.WithTemperature(settings.Temperature),
			convo.WithTopP(settings.TopP),
			convo.WithLogger(log.L()),
		)
		return agent.NewSession(transcriber, processor, speech,
			agent.WithEvents(events),
			agent.WithLogger(log.L()),
		)
	}

	if settings.Phone {
		server := phone.NewServer(settings.Addr, *publicHost, phone.SessionFactory(newSession), log.L())
		if err := server.Start(); err != nil {
			log.Error("phone server stopped", "error", err)
			os.Exit(1)
		}
		return
	}

	server := web.NewServer(settings.Addr, web.SessionFactory(newSession), log.L())
	server.SetRTCOffer(func(ctx context.Context, offerSDP string) (string, error) {
		peer, err := rtc.NewPeer(rtc.DefaultConfig())
		if err != nil {
			return "", err
		}
		peer.SetSession(newSession(peer.Events()))
		return peer.HandleOffer(ctx, offerSDP)
	})

	if err := server.Start(); err != nil {
		log.Error("web server stopped", "error", err)
		os.Exit(1)
	}
}

// checkHealth pings each backend once. Failures are warnings: the
// services may still be warming up, and turns degrade gracefully.
func checkHealth(backend *inference.Ollama, transcriber *stt.Whisper, speech *tts.Kokoro) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := backend.Health(ctx); err != nil {
		log.Warn("language model unreachable", "error", err)
	}
	if err := transcriber.Health(ctx); err != nil {
		log.Warn("speech recognition unreachable", "error", err)
	}
	if err := speech.Health(ctx); err != nil {
		log.Warn("speech synthesis unreachable", "error", err)
	}
}
