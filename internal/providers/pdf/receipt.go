package pdf

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/johnfercher/maroto/v2"
	"github.com/johnfercher/maroto/v2/pkg/components/col"
	"github.com/johnfercher/maroto/v2/pkg/components/line"
	"github.com/johnfercher/maroto/v2/pkg/components/text"
	"github.com/johnfercher/maroto/v2/pkg/config"
	"github.com/johnfercher/maroto/v2/pkg/consts/align"
	"github.com/johnfercher/maroto/v2/pkg/consts/fontstyle"
	"github.com/johnfercher/maroto/v2/pkg/props"
	"github.com/smallbiznis/charitydesk/internal/receipt/domain"
)

const dateLayout = "January 2, 2006"

// ReceiptRenderer draws donation receipts as single page PDFs.
type ReceiptRenderer struct{}

func New() domain.Renderer {
	return &ReceiptRenderer{}
}

func (r *ReceiptRenderer) Render(ctx context.Context, receipt domain.Receipt) (io.Reader, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	cfg := config.NewBuilder().
		WithPageNumber(props.PageNumber{
			Pattern: "Page {current} of {total}",
			Place:   props.RightBottom,
		}).
		Build()

	m := maroto.New(cfg)

	m.AddRow(20,
		text.NewCol(8, "Donation receipt", props.Text{
			Size:  20,
			Style: fontstyle.Bold,
			Align: align.Left,
		}),
		text.NewCol(4, receipt.Organization, props.Text{
			Size:  12,
			Style: fontstyle.Bold,
			Align: align.Right,
		}),
	)

	m.AddRow(20,
		col.New(6).Add(
			text.New("Receipt number: "+receipt.Number, props.Text{Top: 0}),
			text.New("Date: "+receipt.PaidAt.UTC().Format(dateLayout), props.Text{Top: 5}),
		),
		col.New(6).Add(
			text.New("Donor", props.Text{Style: fontstyle.Bold, Align: align.Right}),
			text.New(donorLabel(receipt), props.Text{Top: 5, Align: align.Right}),
			text.New(receipt.DonorEmail, props.Text{Top: 10, Align: align.Right}),
		),
	)

	m.AddRow(4, line.NewCol(12))

	m.AddRow(15,
		text.NewCol(12, FormatAmount(receipt)+" received with thanks", props.Text{
			Size:  14,
			Style: fontstyle.Bold,
			Top:   5,
		}),
	)

	m.AddRow(10,
		text.NewCol(6, "Description", props.Text{Style: fontstyle.Bold, Size: 9}),
		text.NewCol(3, "Frequency", props.Text{Style: fontstyle.Bold, Size: 9, Align: align.Right}),
		text.NewCol(3, "Amount", props.Text{Style: fontstyle.Bold, Size: 9, Align: align.Right}),
	)
	m.AddRow(10,
		text.NewCol(6, description(receipt), props.Text{Size: 9}),
		text.NewCol(3, receipt.Frequency, props.Text{Size: 9, Align: align.Right}),
		text.NewCol(3, FormatAmount(receipt), props.Text{Size: 9, Align: align.Right}),
	)

	if receipt.Dedication != "" {
		m.AddRow(12,
			text.NewCol(12, receipt.Dedication, props.Text{Size: 9, Style: fontstyle.Italic, Top: 4}),
		)
	}

	m.AddRow(20,
		text.NewCol(12, "No goods or services were provided in exchange for this contribution.", props.Text{
			Size: 8,
			Top:  10,
		}),
	)

	doc, err := m.Generate()
	if err != nil {
		return nil, err
	}
	return bytes.NewReader(doc.GetBytes()), nil
}

// FormatAmount renders the amount with its ISO currency code, e.g. "50.00 USD".
func FormatAmount(receipt domain.Receipt) string {
	return fmt.Sprintf("%s %s", receipt.Amount.StringFixed(2), strings.ToUpper(receipt.Currency))
}

func donorLabel(receipt domain.Receipt) string {
	if strings.TrimSpace(receipt.DonorName) == "" {
		return "Anonymous donor"
	}
	return receipt.DonorName
}

func description(receipt domain.Receipt) string {
	if receipt.Campaign == "" {
		return "Donation"
	}
	return "Donation to " + receipt.Campaign
}
