package main

import (
	"context"
	"flag"
	"log/slog"
	"os"

	"github.com/poiesic/ktsearch"
	"github.com/poiesic/ktsearch/config"
	"github.com/poiesic/ktsearch/core"
	"github.com/poiesic/ktsearch/ingest"
)

// Sample knowledge-transfer transcript segments in the shape the Teams
// export pipeline produces. Useful for exercising search locally
// without a real transcript dump.
var records = []ingest.Record{
	{
		VideoName: "KT EWM Dexco",
		Segment:   0,
		Text:      "Bom dia pessoal, hoje vamos falar sobre o processo de expedição no EWM da Dexco. A transação ZEWM0001 é o ponto de entrada para a criação das ordens de frete.",
		Metadata: map[string]string{
			core.MetaClientName:     "Dexco",
			core.MetaSpeaker:        "Marina Costa",
			core.MetaMeetingDate:    "2025-03-10",
			core.MetaSearchableTags: "EWM, expedição, ZEWM0001",
		},
	},
	{
		VideoName: "KT EWM Dexco",
		Segment:   1,
		Text:      "Um problema recorrente na virada foi o travamento das ondas de picking quando o depósito 001 ficava sem recurso disponível. A solução foi ajustar o job de liberação.",
		Metadata: map[string]string{
			core.MetaClientName:     "Dexco",
			core.MetaSpeaker:        "Marina Costa",
			core.MetaMeetingDate:    "2025-03-10",
			core.MetaSearchableTags: "EWM, picking, problema",
			core.MetaImpactLevel:    "alto",
		},
	},
	{
		VideoName: "KT EWM Dexco",
		Segment:   2,
		Text:      "Sobre as integrações, o EWM conversa com o TM pela interface padrão e qualquer erro fica registrado na SLG1. Vale monitorar diariamente durante a hypercare.",
		Metadata: map[string]string{
			core.MetaClientName:     "Dexco",
			core.MetaSpeaker:        "Rafael Lima",
			core.MetaMeetingDate:    "2025-03-10",
			core.MetaSearchableTags: "EWM, TM, integração, SLG1",
			core.MetaMeetingPhase:   "hypercare",
		},
	},
	{
		VideoName: "KT SD Víssimo",
		Segment:   0,
		Text:      "Na Víssimo o faturamento parcial foi configurado com split de remessa. O cliente pediu que cada pedido acima de dez itens gerasse faturas separadas por categoria.",
		Metadata: map[string]string{
			core.MetaClientName:     "Víssimo",
			core.MetaSpeaker:        "Ana Beatriz",
			core.MetaMeetingDate:    "2025-04-02",
			core.MetaSearchableTags: "SD, faturamento, split",
		},
	},
	{
		VideoName: "KT SD Víssimo",
		Segment:   1,
		Text:      "Ficou decidido que a equipe de sustentação assume os chamados de pricing a partir de maio. A condição ZPR0 precisa de atenção porque foi estendida com tabela própria.",
		Metadata: map[string]string{
			core.MetaClientName:     "Víssimo",
			core.MetaSpeaker:        "Ana Beatriz",
			core.MetaMeetingDate:    "2025-04-02",
			core.MetaSearchableTags: "SD, pricing, ZPR0",
			core.MetaDecisions:      "sustentação assume chamados de pricing em maio",
		},
	},
	{
		VideoName: "KT MM Dexco",
		Segment:   0,
		Text:      "No MM da Dexco a liberação de pedidos usa estratégia de duas alçadas. Compras acima de cinquenta mil exigem aprovação da diretoria antes da criação da ordem.",
		Metadata: map[string]string{
			core.MetaClientName:     "Dexco",
			core.MetaSpeaker:        "Rafael Lima",
			core.MetaMeetingDate:    "2025-03-24",
			core.MetaSearchableTags: "MM, liberação, alçada",
		},
	},
}

var dataDir = flag.String("db", "./kt_store", "chunk store directory")

func init() {
	handler := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})
	slog.SetDefault(slog.New(handler))
	flag.Parse()
}

func main() {
	cfg := config.Default()
	cfg.DataDir = *dataDir

	engine, err := ktsearch.NewEngine(cfg)
	if err != nil {
		panic(err)
	}
	defer engine.Close()

	ingester, err := engine.NewIngestionPipeline()
	if err != nil {
		panic(err)
	}
	defer ingester.Release()

	ctx := context.Background()
	added, err := ingester.Ingest(ctx, records...)
	if err != nil {
		panic(err)
	}
	ingester.Wait()

	slog.Info("seed complete", "chunks", len(added))
}
