// koihealth-ask asks the health assistant from a terminal.
//
// Usage:
//
//	koihealth-ask [-offline] [-speak] [-verbose] [question ...]
//	koihealth-ask -image pill.jpg [question ...]
//	koihealth-ask -health
//
// Without a question it reads questions line by line from stdin.
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"koihealth/internal/bootstrap"
	"koihealth/internal/config"
	"koihealth/internal/conversation"
	"koihealth/internal/domain"
	"koihealth/internal/logger"
	"koihealth/internal/medication"
)

func main() {
	os.Exit(run())
}

func run() int {
	_ = godotenv.Load()

	offline := flag.Bool("offline", false, "answer locally without contacting the chat endpoint")
	speak := flag.Bool("speak", false, "read answers aloud when Azure speech is configured")
	image := flag.String("image", "", "analyze a medicine photo instead of asking the chat")
	health := flag.Bool("health", false, "check whether the chat endpoint is reachable and exit")
	clearHistory := flag.Bool("clear", false, "clear the stored chat history before asking")
	verbose := flag.Bool("verbose", false, "log to stderr at debug level")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		return fail(err)
	}
	if *offline {
		cfg.Chat.OfflineOnly = true
	}
	if !*speak {
		cfg.Azure.SpeechKey = ""
	}

	level := logger.LevelOff
	if *verbose {
		level = logger.LevelVerbose
	}
	log := logger.New(level, os.Stderr)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	services, err := bootstrap.BuildWith(ctx, cfg, &terminalSink{out: os.Stderr}, log)
	if err != nil {
		return fail(err)
	}
	defer services.Close()

	question := strings.TrimSpace(strings.Join(flag.Args(), " "))
	switch {
	case *health:
		if services.Chat.CheckHealth(ctx) {
			fmt.Println(titleStyle.Render("✓ " + cfg.Chat.Endpoint))
			return 0
		}
		fmt.Println(errorStyle.Render("✗ " + cfg.Chat.Endpoint))
		return 1
	case *image != "":
		if err := analyze(ctx, services.Medication, *image, question, os.Stdout); err != nil {
			return fail(err)
		}
		return 0
	}

	if *clearHistory {
		if err := services.Conversation.Clear(ctx); err != nil {
			return fail(err)
		}
	}

	if question != "" {
		if err := ask(ctx, services.Conversation, question, os.Stdout); err != nil {
			return 1
		}
		waitForSpeech(ctx, services)
		return 0
	}

	fmt.Println(titleStyle.Render(conversation.Greeting))
	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print(userStyle.Render("› "))
		if !scanner.Scan() {
			fmt.Println()
			return 0
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if line == "/retry" {
			last, ok := services.Conversation.Retry()
			if !ok {
				fmt.Println(noteStyle.Render("다시 보낼 질문이 없습니다."))
				continue
			}
			line = last
		}
		_ = ask(ctx, services.Conversation, line, os.Stdout)
		if ctx.Err() != nil {
			return 130
		}
	}
}

// ask streams the answer to out as it arrives.
func ask(ctx context.Context, session *conversation.Session, question string, out io.Writer) error {
	fmt.Fprint(out, assistantLabelStyle.Render("상담사")+" ")

	streamed := false
	reply, err := session.Submit(ctx, question, func(chunk string) {
		streamed = true
		fmt.Fprint(out, chunk)
	})
	if reply.Turn.Text != "" && (!streamed || reply.Fallback) {
		if streamed {
			fmt.Fprintln(out)
		}
		fmt.Fprint(out, reply.Turn.Text)
	}
	fmt.Fprintln(out)

	var retryable *conversation.RetryableError
	switch {
	case err == nil:
		if reply.Fallback {
			fmt.Fprintln(out, noteStyle.Render("(스트리밍 실패로 일반 요청으로 답변했습니다)"))
		}
		return nil
	case errors.As(err, &retryable):
		fmt.Fprintln(out, errorStyle.Render("답변을 받지 못했습니다. /retry 로 다시 시도하세요."))
	case errors.Is(err, context.Canceled):
	default:
		fmt.Fprintln(out, errorStyle.Render(err.Error()))
	}
	return err
}

func analyze(ctx context.Context, client *medication.Client, path string, question string, out io.Writer) error {
	file, err := os.Open(path)
	if err != nil {
		return err
	}
	defer file.Close()

	report, err := client.Analyze(ctx, medication.Image{Name: filepath.Base(path), Data: file}, question)
	if err != nil {
		return err
	}
	fmt.Fprintln(out, panelStyle.Render(strings.TrimSpace(medication.FormatMarkdown(report.Analysis))))
	if report.Fallback {
		fmt.Fprintln(out, noteStyle.Render("분석 서버에 연결할 수 없어 기본 안내를 표시했습니다."))
	}
	return nil
}

// waitForSpeech keeps the process alive until a read-aloud answer finished.
func waitForSpeech(ctx context.Context, services *bootstrap.Services) {
	deadline := time.Now().Add(2 * time.Minute)
	for time.Now().Before(deadline) && ctx.Err() == nil {
		if services.Voice.Status().Output == domain.OutputIdle {
			return
		}
		time.Sleep(100 * time.Millisecond)
	}
}

func fail(err error) int {
	fmt.Fprintln(os.Stderr, errorStyle.Render("koihealth-ask: "+err.Error()))
	return 1
}

// terminalSink prints voice errors; the terminal client never captures audio.
type terminalSink struct {
	out io.Writer
}

func (terminalSink) VoiceStateChanged(domain.VoiceStatus, domain.VoiceStateReason) {}

func (terminalSink) PartialTranscript(string) {}

func (terminalSink) QuestionRecognized(string) {}

func (terminalSink) AnswerReady(string, bool) {}

func (s *terminalSink) VoiceError(code domain.ErrorCode, detail string) {
	fmt.Fprintln(s.out, noteStyle.Render(fmt.Sprintf("[%s] %s", code, detail)))
}
