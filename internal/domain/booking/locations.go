package booking

// BarbersLocation holds the barber directory, one document per barber
// keyed by ID.
const BarbersLocation = "barbers"

// CustomerLocation holds a customer's copies.
func CustomerLocation(subjectID string) string {
	return "users/" + subjectID + "/appointments"
}

// ScheduleLocation holds a barber's copies.
func ScheduleLocation(barberID string) string {
	return BarbersLocation + "/" + barberID + "/schedule"
}
