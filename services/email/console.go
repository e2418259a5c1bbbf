package emailsvc

import (
	"fmt"
	"io"
	"net/mail"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/trezcool/maktaba/core"
)

// ConsoleService writes emails to out instead of sending them. Used in DEV and tests.
type ConsoleService struct {
	from       mail.Address
	subjPrefix string
	out        io.Writer

	mu   sync.Mutex
	sent []core.EmailMessage
}

var _ core.EmailService = (*ConsoleService)(nil)

func NewConsoleService(conf *core.Config) *ConsoleService {
	return newConsoleService(conf, os.Stdout)
}

// NewConsoleServiceMock only records messages.
func NewConsoleServiceMock(conf *core.Config) *ConsoleService {
	return newConsoleService(conf, io.Discard)
}

func newConsoleService(conf *core.Config, out io.Writer) *ConsoleService {
	return &ConsoleService{
		from:       conf.DefaultFromEmail,
		subjPrefix: "[" + conf.AppName + "] ",
		out:        out,
	}
}

// SendMessages writes messages synchronously, skipping those without recipients or content.
func (svc *ConsoleService) SendMessages(messages ...*core.EmailMessage) {
	svc.mu.Lock()
	defer svc.mu.Unlock()
	for _, msg := range messages {
		if msg == nil || !msg.HasRecipients() || !msg.HasContent() {
			continue
		}
		svc.write(*msg)
		svc.sent = append(svc.sent, *msg)
	}
}

// SentMessages returns a copy of every message sent so far.
func (svc *ConsoleService) SentMessages() []core.EmailMessage {
	svc.mu.Lock()
	defer svc.mu.Unlock()
	sent := make([]core.EmailMessage, len(svc.sent))
	copy(sent, svc.sent)
	return sent
}

func (svc *ConsoleService) write(msg core.EmailMessage) {
	body := new(strings.Builder)
	_, _ = fmt.Fprintf(body, "From: %s\r\n", svc.from.String())
	_, _ = fmt.Fprint(body, "MIME-Version: 1.0\r\n")
	_, _ = fmt.Fprintf(body, "Date: %s\r\n", time.Now().Format(time.RFC1123Z))
	_, _ = fmt.Fprintf(body, "Subject: %s\r\n", svc.subjPrefix+msg.Subject)
	_, _ = fmt.Fprintf(body, "To: %s\r\n", joinAddresses(msg.To))
	if len(msg.Cc) > 0 {
		_, _ = fmt.Fprintf(body, "CC: %s\r\n", joinAddresses(msg.Cc))
	}
	if len(msg.Bcc) > 0 {
		_, _ = fmt.Fprintf(body, "BCC: %s\r\n", joinAddresses(msg.Bcc))
	}
	_, _ = fmt.Fprint(body, "Content-Type: text/plain; charset=utf-8\r\n\r\n")
	_, _ = fmt.Fprintf(body, "%s\r\n", msg.Body)
	_, _ = fmt.Fprintln(svc.out, body.String())
	_, _ = fmt.Fprintln(svc.out, strings.Repeat("-", 79))
}

func joinAddresses(addrs []mail.Address) string {
	strs := make([]string, 0, len(addrs))
	for _, addr := range addrs {
		strs = append(strs, addr.String())
	}
	return strings.Join(strs, ", ")
}
