package telemetry_test

import (
	"sync"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/strata/pkg/logger"
	"github.com/papercomputeco/strata/pkg/telemetry"
	"github.com/papercomputeco/strata/pkg/telemetry/nop"
)

var _ = Describe("Emitter", func() {
	It("ignores events emitted after Close", func() {
		emitter := telemetry.NewEmitter(nop.NewPublisher(), logger.Nop())
		Expect(emitter.Close()).To(Succeed())

		emitter.Emit(telemetry.NewEvent(telemetry.EventTurnAppended, "s1", nil))
		Expect(emitter.Dropped()).To(BeZero())
	})

	It("is idempotent on repeated Close", func() {
		emitter := telemetry.NewEmitter(nop.NewPublisher(), logger.Nop())
		Expect(emitter.Close()).To(Succeed())
		Expect(emitter.Close()).To(Succeed())
	})

	It("survives emits racing a concurrent Close", func() {
		for range 200 {
			emitter := telemetry.NewEmitter(nop.NewPublisher(), logger.Nop())

			var wg sync.WaitGroup
			wg.Add(4)
			for range 4 {
				go func() {
					defer GinkgoRecover()
					defer wg.Done()
					for range 50 {
						emitter.Emit(telemetry.NewEvent(telemetry.EventTurnAppended, "s1", nil))
					}
				}()
			}

			Expect(emitter.Close()).To(Succeed())
			wg.Wait()
		}
	})
})
