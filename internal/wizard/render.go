package wizard

import (
	"fmt"
	"io"
	"strings"

	"anniv-certificate-service/internal/domain"
)

// TextRenderer writes a plain text certificate.
type TextRenderer struct{}

func (TextRenderer) Render(w io.Writer, cert domain.Certificate, applicant Applicant) error {
	var b strings.Builder
	rule := strings.Repeat("=", 40)
	fmt.Fprintln(&b, rule)
	fmt.Fprintf(&b, "证书编号  %s\n", cert.FullNo)
	fmt.Fprintf(&b, "姓名      %s\n", cert.Name)
	fmt.Fprintf(&b, "工号      %s\n", cert.WorkNo)
	fmt.Fprintf(&b, "入职时间  %s\n", cert.StartDate)
	fmt.Fprintf(&b, "同行天数  %d\n", cert.DaysToTarget)
	if applicant.Constellation != "" {
		fmt.Fprintf(&b, "星座      %s\n", applicant.Constellation)
	}
	if cert.Wishes != "" {
		fmt.Fprintf(&b, "祝福      %s\n", cert.Wishes)
	}
	fmt.Fprintln(&b, rule)
	_, err := io.WriteString(w, b.String())
	return err
}
