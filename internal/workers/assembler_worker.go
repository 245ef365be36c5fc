package workers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/talentis/proctor/internal/models"
	"github.com/talentis/proctor/internal/providers/llm"
	"github.com/talentis/proctor/internal/providers/stt"
	mongorepo "github.com/talentis/proctor/internal/repositories/mongo"
	"github.com/talentis/proctor/internal/repositories/postgres"
	"github.com/talentis/proctor/internal/services"
	"github.com/talentis/proctor/internal/storage"
)

const maxTranscribeBytes = 10 << 20

// AssemblerPool consumes finished attempts from the assemble stream,
// concatenates their spooled media chunks into final objects, transcribes the
// recording and runs the behavior analysis. Each stage is best-effort past
// assembly: a failed transcription still leaves the media reviewable.
type AssemblerPool struct {
	Redis    *redis.Client
	Attempts postgres.AttemptRepo
	Chunks   mongorepo.ChunkRepository
	Spool    *storage.DiskSpool
	Store    storage.Uploader
	NumWorkers int

	STT stt.Provider // optional
	LLM llm.Provider // optional

	Logger *logrus.Logger

	Stream         string
	Group          string
	ConsumerPrefix string
}

func (p *AssemblerPool) Start(ctx context.Context) error {
	if p.Redis == nil || p.Attempts == nil || p.Chunks == nil || p.Spool == nil || p.Store == nil {
		return errors.New("AssemblerPool missing dependency: Redis/Attempts/Chunks/Spool/Store must be set")
	}
	if p.Stream == "" {
		p.Stream = services.AssembleStream
	}
	if p.Group == "" {
		p.Group = "assembler-workers"
	}
	if p.ConsumerPrefix == "" {
		p.ConsumerPrefix = "c"
	}
	if p.NumWorkers <= 0 {
		p.NumWorkers = 2
	}
	if p.Logger == nil {
		p.Logger = logrus.New()
	}

	_ = p.Redis.XGroupCreateMkStream(ctx, p.Stream, p.Group, "0").Err() // ignore BUSYGROUP

	for i := 0; i < p.NumWorkers; i++ {
		consumer := p.ConsumerPrefix + "-" + strconv.Itoa(i+1)
		go p.runConsumer(ctx, consumer)
	}
	return nil
}

func (p *AssemblerPool) runConsumer(ctx context.Context, consumer string) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		res, err := p.Redis.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    p.Group,
			Consumer: consumer,
			Streams:  []string{p.Stream, ">"},
			Count:    5,
			Block:    5 * time.Second,
		}).Result()

		if err != nil {
			if err == redis.Nil {
				continue
			}
			time.Sleep(500 * time.Millisecond)
			continue
		}

		for _, stream := range res {
			for _, msg := range stream.Messages {
				p.handleMsg(ctx, msg)
				_ = p.Redis.XAck(ctx, p.Stream, p.Group, msg.ID).Err()
			}
		}
	}
}

func (p *AssemblerPool) handleMsg(ctx context.Context, msg redis.XMessage) {
	raw, _ := msg.Values["attempt_id"].(string)
	attemptID, _ := strconv.ParseInt(raw, 10, 64)
	if attemptID == 0 {
		return
	}

	log := p.Logger.WithFields(logrus.Fields{
		"redis_id":   msg.ID,
		"attempt_id": attemptID,
	})
	liveCh := services.LiveChannel(attemptID)

	p.publishStatus(ctx, liveCh, "processing", "assembling media")

	attempt, err := p.Attempts.GetByID(ctx, attemptID)
	if err != nil {
		log.WithError(err).Error("attempt lookup failed")
		return
	}

	videoPath, videoURL := p.assemble(ctx, log, attemptID, services.ChunkVideo)
	_, screenURL := p.assemble(ctx, log, attemptID, services.ChunkScreen)
	if videoURL == nil && screenURL == nil {
		log.Error("no media assembled")
		_ = p.Attempts.SetStatus(ctx, attemptID, models.AttemptFailed)
		p.publishStatus(ctx, liveCh, "failed", "no media chunks found")
		return
	}
	if err := p.Attempts.SetMedia(ctx, attemptID, videoURL, screenURL); err != nil {
		log.WithError(err).Error("failed to store media urls")
	}

	transcript := p.transcribe(ctx, log, videoPath)
	analysis := p.analyze(ctx, log, liveCh, transcript, attempt)
	flags, risk := scoreProctoring(attempt.Responses)

	if err := p.Attempts.SetAnalysis(ctx, attemptID, transcript, analysis, flags, risk); err != nil {
		log.WithError(err).Error("failed to store analysis")
		_ = p.Attempts.SetStatus(ctx, attemptID, models.AttemptFailed)
		p.publishStatus(ctx, liveCh, "failed", "analysis could not be stored")
		return
	}

	p.cleanup(ctx, log, attemptID, videoPath)
	p.publishStatus(ctx, liveCh, "done", "attempt processed")
	log.Info("attempt processed")
}

// assemble concatenates the spooled chunks of one kind, uploads the result
// and returns the local path plus the stored object path. Missing chunks for a
// kind are normal (screen share may have been denied).
func (p *AssemblerPool) assemble(ctx context.Context, log *logrus.Entry, attemptID int64, kind string) (string, *string) {
	manifest, err := p.Chunks.ListByAttempt(ctx, attemptID, kind)
	if err != nil {
		log.WithError(err).WithField("kind", kind).Error("manifest lookup failed")
		return "", nil
	}
	if len(manifest) == 0 {
		return "", nil
	}

	paths := make([]string, len(manifest))
	for i, c := range manifest {
		paths[i] = c.Path
	}

	outPath, err := p.Spool.Concat(paths, fmt.Sprintf("attempt_%d_%s.webm", attemptID, kind))
	if err != nil {
		log.WithError(err).WithField("kind", kind).Error("chunk concat failed")
		return "", nil
	}

	f, err := os.Open(outPath)
	if err != nil {
		log.WithError(err).WithField("kind", kind).Error("assembled file open failed")
		return outPath, nil
	}
	defer f.Close()

	object := fmt.Sprintf("attempts/%d/%s.webm", attemptID, kind)
	url, err := p.Store.Upload(ctx, object, "video/webm", f)
	if err != nil {
		log.WithError(err).WithField("kind", kind).Error("media upload failed")
		return outPath, nil
	}

	p.Spool.Remove(paths...)
	return outPath, &url
}

func (p *AssemblerPool) transcribe(ctx context.Context, log *logrus.Entry, videoPath string) string {
	if p.STT == nil || videoPath == "" {
		return ""
	}

	audio, err := os.ReadFile(videoPath)
	if err != nil {
		log.WithError(err).Warn("transcription skipped: cannot read media")
		return ""
	}
	if len(audio) > maxTranscribeBytes {
		audio = audio[:maxTranscribeBytes]
	}

	text, _, err := p.STT.Transcribe(ctx, audio, "en-US")
	if err != nil {
		log.WithError(err).Warn("transcription failed")
		return ""
	}
	return text
}

// analyze asks the LLM for a behavior read of the interview, streaming
// increments to live reviewers while the full response accumulates.
func (p *AssemblerPool) analyze(ctx context.Context, log *logrus.Entry, liveCh, transcript string, attempt *models.SimulationAttempt) []byte {
	if p.LLM == nil {
		return nil
	}

	prompt := "You are reviewing a recorded job interview for hiring signal and integrity.\n" +
		"Summarize the candidate's communication and note anything suspicious. Reply in 5 sentences or fewer.\n"
	if transcript != "" {
		prompt += "\nTranscript:\n" + transcript
	}
	if len(attempt.Responses) > 0 {
		prompt += "\nProctoring counters:\n" + string(attempt.Responses)
	}

	chunks, errs := p.LLM.StreamAnswer(ctx, prompt)

	full := strings.Builder{}
	seq := int64(0)
	for chunk := range chunks {
		seq++
		full.WriteString(chunk)

		payload, _ := json.Marshal(map[string]any{
			"type":  "analysis_chunk",
			"seq":   seq,
			"chunk": chunk,
		})
		_ = p.Redis.Publish(ctx, liveCh, string(payload)).Err()
	}

	var streamErr error
	select {
	case streamErr = <-errs:
	default:
	}
	if streamErr != nil {
		log.WithError(streamErr).Warn("behavior analysis failed")
		return nil
	}

	out, _ := json.Marshal(map[string]string{"summary": full.String()})
	return out
}

func (p *AssemblerPool) cleanup(ctx context.Context, log *logrus.Entry, attemptID int64, assembled string) {
	if err := p.Chunks.DeleteByAttempt(ctx, attemptID); err != nil {
		log.WithError(err).Warn("manifest cleanup failed")
	}
	if assembled != "" {
		p.Spool.Remove(assembled)
	}
}

func (p *AssemblerPool) publishStatus(ctx context.Context, channel, status, message string) {
	payload, _ := json.Marshal(map[string]string{
		"type":    "status",
		"status":  status,
		"message": message,
	})
	_ = p.Redis.Publish(ctx, channel, string(payload)).Err()
}

// scoreProctoring turns the merged counters into reviewer flags and a naive
// 0..1 cheating-risk score. A blunt heuristic: reviewers see the raw events
// next to it.
func scoreProctoring(responses []byte) ([]string, float64) {
	var parsed struct {
		Proctoring models.ProctoringSummary `json:"proctoring"`
	}
	if len(responses) > 0 {
		_ = json.Unmarshal(responses, &parsed)
	}
	p := parsed.Proctoring

	var flags []string
	risk := 0.0
	if p.MultipleFaces {
		flags = append(flags, services.FlagMultipleFaces)
		risk += 0.35
	}
	if p.NoFaceFlags > 0 {
		flags = append(flags, services.FlagNoFace)
		risk += 0.04 * float64(p.NoFaceFlags)
	}
	if p.TabBlurCount > 0 {
		flags = append(flags, "tab_blur")
		risk += 0.05 * float64(p.TabBlurCount)
	}
	if p.PasteCount > 0 {
		flags = append(flags, "paste")
		risk += 0.03 * float64(p.PasteCount)
	}
	if risk > 1 {
		risk = 1
	}
	return flags, risk
}
