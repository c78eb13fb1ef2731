package services

import (
	"context"
	"errors"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-mapper/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-mapper/pkg/models"
)

// SignalKind says whether a term should be learned as a synonym or an antonym.
type SignalKind string

const (
	SignalPositive SignalKind = "positive"
	SignalNegative SignalKind = "negative"
)

// Signal asks for Term to be moved into the synonyms (positive) or antonyms
// (negative) of Target.
type Signal struct {
	Kind   SignalKind `json:"kind"`
	Target string     `json:"target"`
	Term   string     `json:"term"`
}

// DeriveSignals returns the learning signals for a manual change of row to
// newTarget. row must hold the state from before the change.
func DeriveSignals(row models.MappingRow, newTarget string) []Signal {
	header := row.SourceHeader
	var signals []Signal

	if models.IsDefinite(newTarget) && !strings.EqualFold(newTarget, header) {
		signals = append(signals, Signal{Kind: SignalPositive, Target: newTarget, Term: header})
	}

	prior := row.SuggestedTarget
	if models.IsDefinite(prior) && prior != newTarget {
		signals = append(signals, Signal{Kind: SignalNegative, Target: prior, Term: header})
	}
	return signals
}

// ApplySignal moves the signal's term between lex's lists (case-insensitive) and
// returns the updated lexicon together with the patch covering only the lists that
// changed.
func ApplySignal(lex models.Lexicon, sig Signal) (models.Lexicon, models.LexiconPatch) {
	synonyms := append([]string(nil), lex.Synonyms...)
	antonyms := append([]string(nil), lex.Antonyms...)
	var synChanged, antChanged bool

	switch sig.Kind {
	case SignalPositive:
		if !models.ContainsFold(synonyms, sig.Term) {
			synonyms = append(synonyms, sig.Term)
			synChanged = true
		}
		antonyms, antChanged = models.RemoveFold(antonyms, sig.Term)
	case SignalNegative:
		if !models.ContainsFold(antonyms, sig.Term) {
			antonyms = append(antonyms, sig.Term)
			antChanged = true
		}
		synonyms, synChanged = models.RemoveFold(synonyms, sig.Term)
	}

	var patch models.LexiconPatch
	if synChanged {
		joined := models.JoinTermList(synonyms)
		patch.Synonyms = &joined
	}
	if antChanged {
		joined := models.JoinTermList(antonyms)
		patch.Antonyms = &joined
	}
	return models.Lexicon{Synonyms: synonyms, Antonyms: antonyms}, patch
}

// FeedbackSink reads and partially updates the vocabulary of a remote property.
type FeedbackSink interface {
	GetLexicon(ctx context.Context, remoteID string) (*models.Lexicon, error)
	PatchLexicon(ctx context.Context, remoteID string, patch models.LexiconPatch) error
}

// FeedbackLearner persists learning signals. Writes for the same target are
// serialized; a failure for one target never affects another.
type FeedbackLearner struct {
	sink   FeedbackSink
	schema *SchemaCache
	logger *zap.Logger

	locks sync.Map // target -> *sync.Mutex
}

// NewFeedbackLearner creates a learner writing through sink. sink may be nil, in
// which case every signal fails softly.
func NewFeedbackLearner(sink FeedbackSink, schema *SchemaCache, logger *zap.Logger) *FeedbackLearner {
	return &FeedbackLearner{
		sink:   sink,
		schema: schema,
		logger: logger.Named("feedback-learner"),
	}
}

func (l *FeedbackLearner) targetLock(target string) *sync.Mutex {
	m, _ := l.locks.LoadOrStore(target, &sync.Mutex{})
	return m.(*sync.Mutex)
}

// Apply persists one signal. Any error is a *apperrors.FeedbackWriteError and has
// already been logged.
func (l *FeedbackLearner) Apply(ctx context.Context, sig Signal) error {
	fail := func(cause error) error {
		l.logger.Warn("Feedback write failed",
			zap.String("target", sig.Target),
			zap.String("term", sig.Term),
			zap.String("kind", string(sig.Kind)),
			zap.Error(cause))
		return &apperrors.FeedbackWriteError{Target: sig.Target, Cause: cause}
	}

	if l.sink == nil {
		return fail(errors.New("no feedback sink configured"))
	}
	prop, ok := l.schema.Get(sig.Target)
	if !ok {
		return fail(apperrors.ErrNotFound)
	}
	if !prop.Writable() {
		return fail(errors.New("target has no remote identifier"))
	}

	lock := l.targetLock(sig.Target)
	lock.Lock()
	defer lock.Unlock()

	current, err := l.sink.GetLexicon(ctx, prop.RemoteID)
	if err != nil {
		return fail(err)
	}
	if current == nil {
		current = &models.Lexicon{}
	}

	updated, patch := ApplySignal(*current, sig)
	if patch.IsEmpty() {
		l.logger.Debug("Feedback already recorded",
			zap.String("target", sig.Target),
			zap.String("term", sig.Term))
		return nil
	}

	if err := l.sink.PatchLexicon(ctx, prop.RemoteID, patch); err != nil {
		return fail(err)
	}
	l.schema.SetLexicon(sig.Target, updated)

	l.logger.Info("Feedback recorded",
		zap.String("target", sig.Target),
		zap.String("term", sig.Term),
		zap.String("kind", string(sig.Kind)))
	return nil
}

// Learn applies signals in order and returns the errors of the ones that failed.
func (l *FeedbackLearner) Learn(ctx context.Context, signals []Signal) []error {
	var errs []error
	for _, sig := range signals {
		if err := l.Apply(ctx, sig); err != nil {
			errs = append(errs, err)
		}
	}
	return errs
}
