package ohlcvcrypto

import (
	"database/sql"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	logger "github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/nntaoli-project/goex"
	"github.com/nntaoli-project/goex/binance"

	"tradingroom/src/model"
)

// OHLCVCrypto imports 1m klines from Binance into ohlcv_crypto_1m, the table
// the candle price source reads.
type OHLCVCrypto struct {
	Log      *logger.Entry
	DB       *gorm.DB
	Config   *Config
	exchange goex.API
}

func (o *OHLCVCrypto) Start() error {
	if o.Config == nil {
		o.Config = GetConfig()
	}

	o.exchange = o.newBinanceInstance()

	if o.Config.AutoMode {
		if err := o.determineStartPoint(); err != nil {
			return err
		}
	}

	return o.aggregateAndSave()
}

func (*OHLCVCrypto) newBinanceInstance() *binance.Binance {
	apiConfig := &goex.APIConfig{
		HttpClient: http.DefaultClient,
		Endpoint:   binance.GLOBAL_API_BASE_URL,
	}
	return binance.NewWithConfig(apiConfig)
}

// symbol is the trading-room spelling of the pair, e.g. BTCUSDT.
func (o *OHLCVCrypto) symbol() string {
	return strings.ToUpper(o.Config.Symbol + o.Config.Quote)
}

func (o *OHLCVCrypto) aggregateAndSave() error {
	series, err := o.fetchOHLCVSeries()
	if err != nil {
		return err
	}

	for i := range series {
		result := series[i]

		base := &model.OHLCVBase{
			Datetime: time.Unix(result.Timestamp, 0).UTC(),
			Open:     decimal.NewFromFloat(result.Open),
			High:     decimal.NewFromFloat(result.High),
			Low:      decimal.NewFromFloat(result.Low),
			Close:    decimal.NewFromFloat(result.Close),
			Volume:   decimal.NewFromFloat(result.Vol),
			Symbol:   o.symbol(),
		}
		target := base.ConvertToOHLCVCrypto1m()

		// Upsert: on conflict on (symbol, datetime) do update
		if err := o.DB.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "symbol"}, {Name: "datetime"}},
			DoUpdates: clause.AssignmentColumns([]string{"open", "high", "low", "close", "volume"}),
		}).Create(target).Error; err != nil {
			o.Log.WithError(err).Error("aggregateAndSave, Create, ")
			return err
		}

		o.Log.WithFields(logger.Fields{
			"Symbol":   target.Symbol,
			"Close":    target.Close.String(),
			"Datetime": target.Datetime,
		}).Debug("OHLCV candle inserted or updated in database")
	}

	o.Log.WithFields(logger.Fields{
		"Symbol": o.symbol(),
		"Count":  len(series),
	}).Info("OHLCV import finished")

	return nil
}

// determineStartPoint resumes one candle before the newest stored one so a
// partially filled minute is refreshed.
func (o *OHLCVCrypto) determineStartPoint() error {
	o.Config.EndDt = time.Now()

	var latestTime sql.NullTime
	result := o.DB.Model(&model.OHLCVCrypto1m{}).
		Select("MAX(datetime)").
		Where("symbol = ?", o.symbol()).
		Take(&latestTime)

	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			o.Log.
				WithField("StartDt", o.Config.StartDt.String()).
				Warn("no records found, start from the configured StartDt")
			return nil
		}
		o.Log.
			WithError(result.Error).
			Error("Failed to query latest datetime")
		return result.Error
	}

	if latestTime.Valid {
		o.Config.StartDt = latestTime.Time.Add(-time.Minute)
		o.Log.
			WithField("StartDt", o.Config.StartDt.String()).
			WithField("EndDt", o.Config.EndDt.String()).
			Info("determineStartPoint valid date found")
	} else {
		o.Log.
			WithField("StartDt", o.Config.StartDt.String()).
			WithField("EndDt", o.Config.EndDt.String()).
			Warn("no existing MAX(datetime) found, start from the configured StartDt")
	}

	return nil
}

func (o *OHLCVCrypto) fetchOHLCVSeries() ([]goex.Kline, error) {
	targetSymbol := goex.NewCurrencyPair(goex.Currency{Symbol: o.Config.Symbol}, goex.Currency{Symbol: o.Config.Quote})

	const millis = 1000
	klines, err := o.exchange.GetKlineRecords(
		targetSymbol,
		goex.KLINE_PERIOD_1MIN,
		o.Config.Limit,
		goex.OptionalParameter{}.
			Optional("startTime", o.Config.StartDt.Unix()*millis).
			Optional("endTime", o.Config.EndDt.Unix()*millis),
	)
	if err != nil {
		return nil, err
	}

	return klines, nil
}
