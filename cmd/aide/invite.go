package main

import (
	"fmt"
	"io"

	qrcode "github.com/skip2/go-qrcode"

	"github.com/nugget/aide/internal/discord"
)

func parseInviteArgs(args []string) (string, error) {
	var qrPath string
	for i := 0; i < len(args); i++ {
		switch {
		case (args[i] == "-qr" || args[i] == "--qr") && i+1 < len(args):
			qrPath = args[i+1]
			i++
		default:
			return "", fmt.Errorf("usage: aide invite [-qr file.png]")
		}
	}
	return qrPath, nil
}

// runInvite prints the link that adds the bot to a server. Users reach
// the bot by DM once they share a server with it. The link is also
// drawn in the terminal as a QR code, and written as a PNG when qrPath
// is set.
func runInvite(w io.Writer, configPath, qrPath string) error {
	cfg, _, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	if cfg.Discord.ApplicationID == "" {
		return fmt.Errorf("discord.application_id is not set")
	}

	link := discord.InviteURL(cfg.Discord.ApplicationID)
	fmt.Fprintln(w, link)

	qr, err := qrcode.New(link, qrcode.Medium)
	if err != nil {
		return fmt.Errorf("encode QR code: %w", err)
	}
	fmt.Fprintln(w, qr.ToSmallString(false))

	if qrPath != "" {
		if err := qr.WriteFile(512, qrPath); err != nil {
			return fmt.Errorf("write QR code: %w", err)
		}
		fmt.Fprintf(w, "QR code written to %s\n", qrPath)
	}
	return nil
}
