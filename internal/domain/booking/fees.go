package booking

const (
	DefaultCustomerSurcharge int64 = 11
	DefaultPlatformCut       int64 = 9
)

// FeeSchedule splits the platform margin between a surcharge added to the
// customer's total and a cut taken from the barber's price.
type FeeSchedule struct {
	CustomerSurcharge int64
	PlatformCut       int64
}

func DefaultFees() FeeSchedule {
	return FeeSchedule{
		CustomerSurcharge: DefaultCustomerSurcharge,
		PlatformCut:       DefaultPlatformCut,
	}
}

// Margin is what the platform keeps per booking.
func (f FeeSchedule) Margin() int64 {
	return f.CustomerSurcharge + f.PlatformCut
}

// Quote holds the derived prices of one booking, in minor units.
type Quote struct {
	TotalPrice  int64
	BookingFee  int64
	BarberPrice int64
	PriceEarned int64
}

func (f FeeSchedule) Quote(servicePrice int64) Quote {
	return Quote{
		TotalPrice:  servicePrice + f.CustomerSurcharge,
		BookingFee:  f.CustomerSurcharge,
		BarberPrice: servicePrice,
		PriceEarned: servicePrice - f.PlatformCut,
	}
}
