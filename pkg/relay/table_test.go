package relay_test

import (
	"fmt"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/relaylink/relayctl/pkg/relay"
)

var _ = Describe("Table", func() {
	Describe("DefaultTable", func() {
		It("maps four channels to uppercase-on, lowercase-off codes", func() {
			table := relay.DefaultTable()
			commands := table.Commands()
			Expect(commands).To(HaveLen(4))
			for i, cmd := range commands {
				Expect(cmd.Label).To(Equal(fmt.Sprintf("relay%d", i+1)))
				Expect(cmd.On).To(Equal(byte('A' + i)))
				Expect(cmd.Off).To(Equal(byte('a' + i)))
			}
		})

		It("resolves labels", func() {
			cmd, ok := relay.DefaultTable().Lookup("relay3")
			Expect(ok).To(BeTrue())
			Expect(cmd.On).To(Equal(byte('C')))
			Expect(cmd.Off).To(Equal(byte('c')))
		})
	})

	Describe("NewTable", func() {
		It("rejects an empty table", func() {
			_, err := relay.NewTable(nil)
			Expect(err).To(HaveOccurred())
		})

		It("rejects duplicate labels", func() {
			_, err := relay.NewTable([]relay.Command{
				{Label: "pump", On: 'A', Off: 'a'},
				{Label: "pump", On: 'B', Off: 'b'},
			})
			Expect(err).To(MatchError(ContainSubstring("duplicate label")))
		})

		It("rejects a code shared between commands", func() {
			_, err := relay.NewTable([]relay.Command{
				{Label: "pump", On: 'A', Off: 'a'},
				{Label: "fan", On: 'A', Off: 'b'},
			})
			Expect(err).To(MatchError(ContainSubstring("shared")))
		})

		It("rejects identical on and off codes", func() {
			_, err := relay.NewTable([]relay.Command{
				{Label: "pump", On: 'A', Off: 'A'},
			})
			Expect(err).To(HaveOccurred())
		})
	})

	Describe("ParseTable", func() {
		It("parses the YAML format", func() {
			table, err := relay.ParseTable([]byte(`
commands:
  - label: heater
    on: "H"
    off: "h"
  - label: pump
    on: "P"
    off: "p"
`))
			Expect(err).ToNot(HaveOccurred())
			Expect(table.Commands()).To(HaveLen(2))
			cmd, ok := table.Lookup("heater")
			Expect(ok).To(BeTrue())
			Expect(cmd.On).To(Equal(byte('H')))
			Expect(cmd.Off).To(Equal(byte('h')))
		})

		It("rejects multi-byte codes", func() {
			_, err := relay.ParseTable([]byte(`
commands:
  - label: heater
    on: "ON"
    off: "h"
`))
			Expect(err).To(MatchError(ContainSubstring("single byte")))
		})

		It("rejects malformed YAML", func() {
			_, err := relay.ParseTable([]byte("commands: ["))
			Expect(err).To(HaveOccurred())
		})
	})
})
