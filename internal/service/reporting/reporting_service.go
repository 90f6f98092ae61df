package reporting

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/mamadbah2/vitrine/internal/config"
	"github.com/mamadbah2/vitrine/internal/domain/models"
	"github.com/mamadbah2/vitrine/internal/metrics"
	"github.com/mamadbah2/vitrine/pkg/atomicfile"
	"github.com/mamadbah2/vitrine/pkg/clients/mailrelay"
)

const (
	// ProbeTimeout bounds the reachability check made before sending.
	ProbeTimeout = 10 * time.Second

	subjectPrefix = "Mapa de Produção - "
	bodyIntro     = "Segue o mapa de produção em anexo."
)

// ErrMailUnavailable is returned when the mail relay cannot be reached. The
// ledger stays saved locally.
var ErrMailUnavailable = errors.New("mail relay unavailable")

// Mailer sends messages through the relay. Implemented by mailrelay.APIClient.
type Mailer interface {
	Ping(ctx context.Context) error
	Send(ctx context.Context, msg mailrelay.Message) (*mailrelay.SendResponse, error)
}

// Service composes and dispatches production reports and exports ledgers.
type Service struct {
	mailer     Mailer
	recipients []string
	settings   config.Settings
	now        func() time.Time
	logger     *zap.Logger
}

// Option customises a Service.
type Option func(*Service)

// WithClock overrides the clock used for blank dates and export names.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// NewService wires a new reporting service instance. mailer may be nil when
// no relay is configured.
func NewService(mailer Mailer, recipients []string, settings config.Settings, logger *zap.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Service{
		mailer:     mailer,
		recipients: recipients,
		settings:   settings,
		now:        time.Now,
		logger:     logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Settings returns the preferences the service was built with.
func (s *Service) Settings() config.Settings {
	return s.settings
}

// Subject builds the mail subject for a ledger dated date, today when blank.
func Subject(date string, now time.Time) string {
	if strings.TrimSpace(date) == "" {
		date = models.FormatDate(now)
	}
	return subjectPrefix + date
}

// Body renders the mail body with a per-category summary of m.
func Body(m *models.ProductionMap) string {
	var b strings.Builder
	b.WriteString(bodyIntro)
	if m == nil {
		return b.String()
	}

	b.WriteString("\n\n")
	if m.Date != "" {
		fmt.Fprintf(&b, "%s, %s\n", m.Weekday, m.Date)
	}

	category := ""
	for _, item := range m.Items {
		produced := item.TotalProduced()
		if produced == 0 && item.Losses == 0 && item.Surplus == 0 {
			continue
		}
		if item.Category != "" && item.Category != category {
			category = item.Category
			fmt.Fprintf(&b, "\n%s\n", category)
		}
		fmt.Fprintf(&b, "  %s: produzido %d, perdas %d, sobras %d\n", item.Product, produced, item.Losses, item.Surplus)
	}

	produced, losses, surplus := m.Totals()
	fmt.Fprintf(&b, "\nTotal: produzido %d, perdas %d, sobras %d\n", produced, losses, surplus)
	return b.String()
}

// SendLedger mails the ledger content to the configured recipients.
func (s *Service) SendLedger(ctx context.Context, scope models.Scope, m *models.ProductionMap, fileName string, content []byte) (err error) {
	defer func() {
		metrics.ReportDispatchTotal.WithLabelValues(metrics.Status(err)).Inc()
	}()

	if s.mailer == nil {
		return fmt.Errorf("%w: no relay configured", ErrMailUnavailable)
	}
	if len(s.recipients) == 0 {
		return errors.New("no mail recipients configured")
	}
	if len(content) == 0 {
		return fmt.Errorf("ledger %s is empty", fileName)
	}

	probeCtx, cancel := context.WithTimeout(ctx, ProbeTimeout)
	defer cancel()
	if err := s.mailer.Ping(probeCtx); err != nil {
		s.logger.Warn("mail relay unreachable, ledger kept locally", zap.String("scope", scope.String()), zap.Error(err))
		return fmt.Errorf("%w: %v", ErrMailUnavailable, err)
	}

	date := ""
	if m != nil {
		date = m.Date
	}

	resp, err := s.mailer.Send(ctx, mailrelay.Message{
		To:         s.recipients,
		Subject:    Subject(date, s.now()),
		Body:       Body(m),
		Attachment: &mailrelay.Attachment{FileName: fileName, Content: content},
	})
	if err != nil {
		return fmt.Errorf("send production report: %w", err)
	}

	s.logger.Info("production report sent",
		zap.String("scope", scope.String()),
		zap.String("message_id", resp.ID),
		zap.Int("recipients", len(s.recipients)))
	return nil
}

// ExportLedger copies the ledger at ledgerPath into the export directory and
// returns the path of the copy.
func (s *Service) ExportLedger(scope models.Scope, ledgerPath, home string) (string, error) {
	dir, err := s.settings.ExportDirectory(home)
	if err != nil {
		return "", err
	}

	src, err := os.Open(ledgerPath)
	if err != nil {
		return "", fmt.Errorf("%w: open ledger: %v", models.ErrStorageUnavailable, err)
	}
	defer src.Close()

	ext := filepath.Ext(ledgerPath)
	base := strings.TrimSuffix(filepath.Base(ledgerPath), ext)
	name := fmt.Sprintf("%s_%s_%s%s", base, scope.String(), s.now().Format("20060102"), ext)
	target := filepath.Join(dir, name)

	err = atomicfile.Write(target, 0o644, func(w io.Writer) error {
		_, err := io.Copy(w, src)
		return err
	})
	if !atomicfile.Replaced(err) {
		return "", fmt.Errorf("%w: export ledger: %v", models.ErrStorageUnavailable, err)
	}
	if err != nil {
		s.logger.Warn("export written but directory not synced", zap.String("path", target), zap.Error(err))
	}

	s.logger.Info("ledger exported", zap.String("scope", scope.String()), zap.String("path", target))
	return target, nil
}
